// internal/tfjs/setup.go
package tfjs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/SyedDaiam9101/model-evaluator/internal/config"
)

const (
	modelsDir   = "Models"
	examplesDir = "Input_Examples"
	outputsDir  = "Inference_Results"

	modelJSON     = "model.json"
	dataJSON      = "data.json"
	dtypeJSON     = "dtype.json"
	shapeJSON     = "shape.json"
	inputNameJSON = "tf_input_name.json"
)

const scratchPrefix = "tfjs-"

// NewScratch creates a scratch directory under root that no other worker
// uses. An empty root means the system temp directory. The caller removes
// the directory when done.
func NewScratch(fs afero.Fs, root string) (string, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	dir, err := afero.TempDir(fs, root, scratchPrefix)
	if err != nil {
		return "", fmt.Errorf("create scratch directory in %s: %w", root, err)
	}
	return dir, nil
}

// Model is a TFJS model copied to local storage.
type Model struct {
	Name string
	// Dir is the local copy the inference binary reads from
	Dir       string
	Signature *Signature
}

// Setup reads the signature of every model of eval from src and copies the
// model directories to <scratch>/Models/<key> on dst. Models are keyed like
// EvalConfig.ModelKey: by name for multi-model evaluation, by "" otherwise.
func Setup(ctx context.Context, src, dst afero.Fs, scratch string, eval config.EvalConfig) (map[string]*Model, error) {
	models := make([]*Model, len(eval.ModelSpecs))
	keys := make([]string, len(eval.ModelSpecs))

	g, ctx := errgroup.WithContext(ctx)
	for i, spec := range eval.ModelSpecs {
		key := eval.ModelKey(spec)
		keys[i] = key
		g.Go(func() error {
			m, err := setupModel(ctx, src, dst, filepath.Join(scratch, modelsDir, key), spec)
			if err != nil {
				return fmt.Errorf("set up model %q: %w", spec.Name, err)
			}
			models[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*Model, len(models))
	for i, m := range models {
		out[keys[i]] = m
	}
	return out, nil
}

func setupModel(ctx context.Context, src, dst afero.Fs, dir string, spec config.ModelSpec) (*Model, error) {
	data, err := afero.ReadFile(src, filepath.Join(spec.Path, modelJSON))
	if err != nil {
		return nil, err
	}
	sig, err := ParseModelJSON(data)
	if err != nil {
		return nil, err
	}
	if err := copyTree(ctx, src, spec.Path, dst, dir); err != nil {
		return nil, err
	}
	return &Model{Name: spec.Name, Dir: dir, Signature: sig}, nil
}

// copyTree copies every file under root on src to the same relative path
// under dir on dst.
func copyTree(ctx context.Context, src afero.Fs, root string, dst afero.Fs, dir string) error {
	if err := dst.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return afero.Walk(src, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, rel)
		if info.IsDir() {
			return dst.MkdirAll(target, 0o755)
		}
		return copyFile(src, path, dst, target)
	})
}

func copyFile(src afero.Fs, from string, dst afero.Fs, to string) error {
	in, err := src.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := dst.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", from, err)
	}
	return out.Close()
}
