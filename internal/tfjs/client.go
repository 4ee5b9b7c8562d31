// internal/tfjs/client.go
package tfjs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

// Result is the outcome of one run of the inference binary.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Executor runs the inference binary. An error is returned only when the
// process could not be run; a non-zero exit is reported in Result.
type Executor interface {
	Execute(ctx context.Context, binary string, args ...string) (Result, error)
}

// CommandExecutor runs the binary as a local subprocess.
type CommandExecutor struct{}

func (CommandExecutor) Execute(ctx context.Context, binary string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

// ProcessError reports a non-zero exit of the inference binary together with
// its output.
type ProcessError struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("inference failed with status %d\nstdout:\n%s\nstderr:\n%s", e.ExitCode, e.Stdout, e.Stderr)
}

func (e *ProcessError) Unwrap() error { return extract.ErrInferenceFailed }

// Request is one submitted inference, identified by its scratch directories.
type Request struct {
	ID        string
	ModelDir  string
	InputDir  string
	OutputDir string
}

// Client exchanges tensors with the inference binary through JSON files in
// the model directory.
type Client struct {
	fs     afero.Fs
	exec   Executor
	binary string
	logger zerolog.Logger
}

func NewClient(fs afero.Fs, executor Executor, binary string, logger zerolog.Logger) *Client {
	return &Client{fs: fs, exec: executor, binary: binary, logger: logger}
}

// Infer submits inputs to the model at modelDir, runs the binary and returns
// the outputs named after outputNames. Scratch directories are removed once
// the binary has run.
func (c *Client) Infer(ctx context.Context, modelDir string, inputs []extract.NamedTensor, outputNames []string) ([]extract.NamedTensor, error) {
	req, err := c.Submit(modelDir, inputs)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.Cleanup(req); err != nil {
			c.logger.Warn().Err(err).Str("request", req.ID).Msg("failed to remove scratch directories")
		}
	}()

	if err := c.Run(ctx, req); err != nil {
		return nil, err
	}
	return c.Parse(req, outputNames)
}

// Submit writes the input files to a new <model>/Input_Examples/<uuid>
// directory and creates the matching results directory. Both are removed
// again when Submit fails.
func (c *Client) Submit(modelDir string, inputs []extract.NamedTensor) (_ *Request, err error) {
	id := uuid.New().String()
	req := &Request{
		ID:        id,
		ModelDir:  modelDir,
		InputDir:  filepath.Join(modelDir, examplesDir, id),
		OutputDir: filepath.Join(modelDir, outputsDir, id),
	}

	var (
		data   = make([]any, len(inputs))
		dtypes = make([]string, len(inputs))
		shapes = make([][]int, len(inputs))
		names  = make([]string, len(inputs))
	)
	for i, in := range inputs {
		data[i] = in.Tensor.Nested()
		dtypes[i] = in.Tensor.DType().String()
		shapes[i] = in.Tensor.Shape()
		names[i] = in.Name
	}

	defer func() {
		if err == nil {
			return
		}
		if cerr := c.Cleanup(req); cerr != nil {
			c.logger.Warn().Err(cerr).Str("request", req.ID).Msg("failed to remove scratch directories")
		}
	}()

	if err := c.fs.MkdirAll(req.InputDir, 0o755); err != nil {
		return nil, err
	}
	files := []struct {
		name  string
		value any
	}{
		{dataJSON, data},
		{dtypeJSON, dtypes},
		{shapeJSON, shapes},
		{inputNameJSON, names},
	}
	for _, f := range files {
		b, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := afero.WriteFile(c.fs, filepath.Join(req.InputDir, f.name), b, 0o644); err != nil {
			return nil, err
		}
	}
	if err := c.fs.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, err
	}
	return req, nil
}

// Run runs the inference binary for req. There is no timeout; ctx
// cancellation stops the process.
func (c *Client) Run(ctx context.Context, req *Request) error {
	res, err := c.exec.Execute(ctx, c.binary,
		"--model_path="+filepath.Join(req.ModelDir, modelJSON),
		"--inputs_dir="+req.InputDir,
		"--outputs_dir="+req.OutputDir,
	)
	if err != nil {
		return fmt.Errorf("%w: run %s: %w", extract.ErrInferenceFailed, c.binary, err)
	}
	if res.ExitCode != 0 {
		return &ProcessError{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	c.logger.Debug().Str("request", req.ID).Int("stdout_bytes", len(res.Stdout)).Msg("inference binary finished")
	return nil
}

// Parse reads the result files of req. Outputs are matched to names by position.
func (c *Client) Parse(req *Request, names []string) ([]extract.NamedTensor, error) {
	read := func(name string) (gjson.Result, error) {
		b, err := afero.ReadFile(c.fs, filepath.Join(req.OutputDir, name))
		if err != nil {
			return gjson.Result{}, fmt.Errorf("%w (this likely means that inference did not succeed): %v", extract.ErrResultsMissing, err)
		}
		if !gjson.ValidBytes(b) {
			return gjson.Result{}, fmt.Errorf("%s is not valid JSON", name)
		}
		return gjson.ParseBytes(b), nil
	}

	data, err := read(dataJSON)
	if err != nil {
		return nil, err
	}
	dtypes, err := read(dtypeJSON)
	if err != nil {
		return nil, err
	}
	shapes, err := read(shapeJSON)
	if err != nil {
		return nil, err
	}

	values, types, dims := data.Array(), dtypes.Array(), shapes.Array()
	n := min(len(names), len(values), len(types), len(dims))
	out := make([]extract.NamedTensor, n)
	for i := 0; i < n; i++ {
		dtype, err := tensor.ParseDType(types[i].String())
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", names[i], err)
		}
		var shape []int
		for _, d := range dims[i].Array() {
			shape = append(shape, int(d.Int()))
		}
		t, err := decode(values[i], dtype, shape)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", names[i], err)
		}
		out[i] = extract.NamedTensor{Name: names[i], Tensor: t}
	}
	return out, nil
}

// decode rebuilds a dense tensor from an object of flat values keyed "0", "1", ...
func decode(obj gjson.Result, dtype tensor.DType, shape []int) (*tensor.Tensor, error) {
	if !obj.IsObject() {
		return nil, fmt.Errorf("expected an object of values, got %s", obj.Type)
	}
	n := len(obj.Map())
	at := func(i int) gjson.Result { return obj.Get(strconv.Itoa(i)) }

	var (
		t   *tensor.Tensor
		err error
	)
	switch dtype {
	case tensor.Float32:
		t, err = tensor.FromFloat32([]int{n}, collect(n, at, func(r gjson.Result) float32 { return float32(r.Float()) }))
	case tensor.Float64:
		t, err = tensor.FromFloat64([]int{n}, collect(n, at, gjson.Result.Float))
	case tensor.Int32:
		t, err = tensor.FromInt32([]int{n}, collect(n, at, func(r gjson.Result) int32 { return int32(r.Int()) }))
	case tensor.Int64:
		t, err = tensor.FromInt64([]int{n}, collect(n, at, gjson.Result.Int))
	case tensor.Bool:
		t, err = tensor.FromBool([]int{n}, collect(n, at, gjson.Result.Bool))
	case tensor.String:
		t, err = tensor.FromStrings([]int{n}, collect(n, at, func(r gjson.Result) []byte { return []byte(r.String()) }))
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}
	if err != nil {
		return nil, err
	}
	return t.Reshape(shape)
}

func collect[T any](n int, at func(int) gjson.Result, conv func(gjson.Result) T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = conv(at(i))
	}
	return out
}

// Cleanup removes the scratch directories of req.
func (c *Client) Cleanup(req *Request) error {
	return errors.Join(c.fs.RemoveAll(req.InputDir), c.fs.RemoveAll(req.OutputDir))
}
