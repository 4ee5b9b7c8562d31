// internal/tfjs/client_test.go
package tfjs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

// mockExecutor is a testify mock of Executor
type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, binary string, args ...string) (Result, error) {
	ret := m.Called(ctx, binary, args)
	return ret.Get(0).(Result), ret.Error(1)
}

// flags maps the --name=value arguments of one call to their values.
func flags(args mock.Arguments) map[string]string {
	out := map[string]string{}
	for _, a := range args.Get(2).([]string) {
		k, v, _ := strings.Cut(strings.TrimPrefix(a, "--"), "=")
		out[k] = v
	}
	return out
}

// respond writes result files the way the inference binary does.
func respond(t *testing.T, fs afero.Fs, data, dtypes, shapes string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		dir := flags(args)["outputs_dir"]
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, dataJSON), []byte(data), 0o644))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, dtypeJSON), []byte(dtypes), 0o644))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, shapeJSON), []byte(shapes), 0o644))
	}
}

func readInputFile(t *testing.T, fs afero.Fs, args mock.Arguments, name string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, filepath.Join(flags(args)["inputs_dir"], name))
	require.NoError(t, err)
	return string(b)
}

func TestClient_Infer(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &mockExecutor{}
	client := NewClient(fs, exec, "/bin/tfjs_inference", zerolog.Nop())

	x := tensor.Must(tensor.FromFloat32([]int{2, 1}, []float32{1.5, 2}))
	ids := tensor.Must(tensor.FromInt32([]int{2, 2}, []int32{1, 2, 3, 4}))

	var captured mock.Arguments
	exec.On("Execute", mock.Anything, "/bin/tfjs_inference", mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args
			assert.JSONEq(t, `[[[1.5],[2]],[[1,2],[3,4]]]`, readInputFile(t, fs, args, dataJSON))
			assert.JSONEq(t, `["float32","int32"]`, readInputFile(t, fs, args, dtypeJSON))
			assert.JSONEq(t, `[[2,1],[2,2]]`, readInputFile(t, fs, args, shapeJSON))
			assert.JSONEq(t, `["x:0","ids"]`, readInputFile(t, fs, args, inputNameJSON))
			respond(t, fs,
				`[{"0":0.25,"1":0.75},{"0":1,"1":0,"2":1,"3":1}]`,
				`["float32","int32"]`,
				`[[2],[2,2]]`,
			)(args)
		}).
		Return(Result{}, nil).Once()

	outputs, err := client.Infer(context.Background(), "/scratch/Models/m",
		[]extract.NamedTensor{{Name: "x:0", Tensor: x}, {Name: "ids", Tensor: ids}},
		[]string{"score", "mask"},
	)
	require.NoError(t, err)
	exec.AssertExpectations(t)

	require.Len(t, outputs, 2)
	assert.Equal(t, "score", outputs[0].Name)
	assert.Equal(t, []int{2}, outputs[0].Tensor.Shape())
	assert.Equal(t, []float32{0.25, 0.75}, outputs[0].Tensor.Float32s())
	assert.Equal(t, "mask", outputs[1].Name)
	assert.Equal(t, []int{2, 2}, outputs[1].Tensor.Shape())
	assert.Equal(t, []int32{1, 0, 1, 1}, outputs[1].Tensor.Int32s())

	f := flags(captured)
	assert.Equal(t, "/scratch/Models/m/model.json", f["model_path"])
	assert.True(t, strings.HasPrefix(f["inputs_dir"], "/scratch/Models/m/Input_Examples/"))
	assert.True(t, strings.HasPrefix(f["outputs_dir"], "/scratch/Models/m/Inference_Results/"))
	assert.Equal(t, filepath.Base(f["inputs_dir"]), filepath.Base(f["outputs_dir"]), "both directories share the request id")

	for _, dir := range []string{f["inputs_dir"], f["outputs_dir"]} {
		ok, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.False(t, ok, "%s is removed", dir)
	}
}

func TestClient_ProcessFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &mockExecutor{}
	client := NewClient(fs, exec, "tfjs_inference", zerolog.Nop())

	exec.On("Execute", mock.Anything, "tfjs_inference", mock.Anything).
		Return(Result{ExitCode: 1, Stdout: []byte("loading model"), Stderr: []byte("Error: unknown op 'Foo'")}, nil)

	x := tensor.Must(tensor.FromFloat32([]int{1, 1}, []float32{1}))
	_, err := client.Infer(context.Background(), "/m", []extract.NamedTensor{{Name: "x", Tensor: x}}, []string{"y"})
	require.Error(t, err)

	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.ExitCode)
	assert.True(t, errors.Is(err, extract.ErrInferenceFailed))
	assert.Contains(t, err.Error(), "inference failed with status 1")
	assert.Contains(t, err.Error(), "Error: unknown op 'Foo'")
	assert.Contains(t, err.Error(), "loading model")
}

func TestClient_ExecutorError(t *testing.T) {
	exec := &mockExecutor{}
	client := NewClient(afero.NewMemMapFs(), exec, "missing-binary", zerolog.Nop())
	exec.On("Execute", mock.Anything, "missing-binary", mock.Anything).
		Return(Result{}, errors.New("executable file not found in $PATH"))

	x := tensor.Must(tensor.FromFloat32([]int{1, 1}, []float32{1}))
	_, err := client.Infer(context.Background(), "/m", []extract.NamedTensor{{Name: "x", Tensor: x}}, []string{"y"})
	assert.True(t, errors.Is(err, extract.ErrInferenceFailed))
	assert.Contains(t, err.Error(), "executable file not found")
}

func TestClient_ResultsMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &mockExecutor{}
	client := NewClient(fs, exec, "tfjs_inference", zerolog.Nop())

	exec.On("Execute", mock.Anything, "tfjs_inference", mock.Anything).
		Run(func(args mock.Arguments) {
			dir := flags(args)["outputs_dir"]
			require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, dataJSON), []byte(`[]`), 0o644))
		}).
		Return(Result{}, nil)

	x := tensor.Must(tensor.FromFloat32([]int{1, 1}, []float32{1}))
	_, err := client.Infer(context.Background(), "/m", []extract.NamedTensor{{Name: "x", Tensor: x}}, []string{"y"})
	assert.True(t, errors.Is(err, extract.ErrResultsMissing))
}

// failingFs fails to open files with the given base name for writing.
type failingFs struct {
	afero.Fs
	name string
}

func (f failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if filepath.Base(name) == f.name {
		return nil, errors.New("disk full")
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestClient_SubmitFailureRemovesScratch(t *testing.T) {
	mem := afero.NewMemMapFs()
	exec := &mockExecutor{}
	client := NewClient(failingFs{Fs: mem, name: shapeJSON}, exec, "/bin/tfjs_inference", zerolog.Nop())

	x := tensor.Must(tensor.FromFloat32([]int{1, 1}, []float32{1}))
	_, err := client.Infer(context.Background(), "/scratch/m", []extract.NamedTensor{{Name: "x", Tensor: x}}, []string{"y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	entries, err := afero.ReadDir(mem, "/scratch/m/"+examplesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	exists, err := afero.DirExists(mem, "/scratch/m/"+outputsDir)
	require.NoError(t, err)
	assert.False(t, exists)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestClient_SubmitStrings(t *testing.T) {
	fs := afero.NewMemMapFs()
	client := NewClient(fs, &mockExecutor{}, "tfjs_inference", zerolog.Nop())

	s := tensor.Must(tensor.FromStrings([]int{2}, [][]byte{[]byte("a"), []byte("b")}))
	req, err := client.Submit("/m", []extract.NamedTensor{{Name: "text", Tensor: s}})
	require.NoError(t, err)

	b, err := afero.ReadFile(fs, filepath.Join(req.InputDir, dataJSON))
	require.NoError(t, err)
	assert.JSONEq(t, `[["a","b"]]`, string(b))

	ok, err := afero.DirExists(fs, req.OutputDir)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, client.Cleanup(req))
	ok, err = afero.DirExists(fs, req.InputDir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	fs := afero.NewMemMapFs()
	client := NewClient(fs, &mockExecutor{}, "tfjs_inference", zerolog.Nop())
	req := &Request{OutputDir: "/out"}
	respond(t, fs,
		`[{"0":true,"1":false},{"0":"cat"},{"0":7}]`,
		`["bool","string","float32"]`,
		`[[2,1],[1],[]]`,
	)(mock.Arguments{nil, nil, []string{"--outputs_dir=/out"}})

	outputs, err := client.Parse(req, []string{"flag", "label", "scalar"})
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	assert.Equal(t, []bool{true, false}, outputs[0].Tensor.Bools())
	assert.Equal(t, []int{2, 1}, outputs[0].Tensor.Shape())
	assert.Equal(t, [][]byte{[]byte("cat")}, outputs[1].Tensor.Strings())
	assert.Equal(t, 0, outputs[2].Tensor.Rank())
	assert.Equal(t, []float32{7}, outputs[2].Tensor.Float32s())
}
