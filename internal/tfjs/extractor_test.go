// internal/tfjs/extractor_test.go
package tfjs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/model-evaluator/internal/config"
	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
	"github.com/SyedDaiam9101/model-evaluator/internal/tensor"
)

func xModel(name, dir string) *Model {
	return &Model{
		Name: name,
		Dir:  dir,
		Signature: &Signature{
			Inputs:  []TensorShape{{Name: "x:0", Dims: []int{-1, 1}}},
			Outputs: []TensorShape{{Name: "Identity:0", Dims: []int{-1, 1}}},
		},
	}
}

func xFeatures(values ...float32) []extract.Features {
	feats := make([]extract.Features, len(values))
	for i, v := range values {
		feats[i] = extract.Features{"x": tensor.Must(tensor.FromFloat32([]int{1}, []float32{v}))}
	}
	return feats
}

func TestExtractor_ThreeRows(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, "tfjs", mock.Anything).
		Run(func(args mock.Arguments) {
			assert.JSONEq(t, `[[[1],[2],[3]]]`, readInputFile(t, fs, args, dataJSON))
			assert.JSONEq(t, `[[3,1]]`, readInputFile(t, fs, args, shapeJSON))
			respond(t, fs, `[{"0":0.1,"1":0.2,"2":0.3}]`, `["float32"]`, `[[3,1]]`)(args)
		}).
		Return(Result{}, nil).Once()

	eval := config.EvalConfig{ModelSpecs: []config.ModelSpec{{Name: "candidate", Path: "/src"}}}
	e := New(zerolog.Nop(), eval, map[string]*Model{"": xModel("candidate", "/scratch/Models")},
		NewClient(fs, exec, "tfjs", zerolog.Nop()))
	assert.Equal(t, StageName, e.StageName())

	out, err := e.Extract(context.Background(), extract.Extracts{extract.FeaturesKey: xFeatures(1, 2, 3)})
	require.NoError(t, err)
	exec.AssertExpectations(t)

	preds, err := out.Predictions()
	require.NoError(t, err)
	require.Len(t, preds, 3)
	for i, want := range []float32{0.1, 0.2, 0.3} {
		assert.Nil(t, preds[i].Fields)
		assert.Equal(t, []int{1}, preds[i].Value.Shape())
		assert.Equal(t, []float32{want}, preds[i].Value.Float32s())
	}
}

func TestExtractor_NarrowsInt64(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, "tfjs", mock.Anything).
		Run(func(args mock.Arguments) {
			assert.JSONEq(t, `["int32"]`, readInputFile(t, fs, args, dtypeJSON))
			assert.JSONEq(t, `[[[5,6],[0,-1]]]`, readInputFile(t, fs, args, dataJSON))
			respond(t, fs, `[{"0":1,"1":0}]`, `["int32"]`, `[[2]]`)(args)
		}).
		Return(Result{}, nil).Once()

	m := &Model{Name: "m", Dir: "/scratch/Models", Signature: &Signature{
		Inputs:  []TensorShape{{Name: "ids", Dims: []int{1, 2}}},
		Outputs: []TensorShape{{Name: "label:0", Dims: []int{-1}}},
	}}
	feats := []extract.Features{
		{"ids": tensor.Must(tensor.FromInt64([]int{2}, []int64{5, 6}))},
		{"ids": tensor.Must(tensor.FromInt64([]int{2}, []int64{1 << 32, -1}))},
	}

	eval := config.EvalConfig{ModelSpecs: []config.ModelSpec{{Name: "m"}}}
	e := New(zerolog.Nop(), eval, map[string]*Model{"": m}, NewClient(fs, exec, "tfjs", zerolog.Nop()))
	out, err := e.Extract(context.Background(), extract.Extracts{extract.FeaturesKey: feats})
	require.NoError(t, err)

	preds, err := out.Predictions()
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, preds[0].Value.Int32s())
	assert.Equal(t, []int32{0}, preds[1].Value.Int32s())
}

func TestExtractor_MultiModel(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, "tfjs", mock.Anything).
		Run(respond(t, fs, `[{"0":1,"1":2}]`, `["float32"]`, `[[2,1]]`)).
		Return(Result{}, nil).Twice()

	eval := config.EvalConfig{ModelSpecs: []config.ModelSpec{{Name: "a"}, {Name: "b"}}}
	models := map[string]*Model{
		"a": xModel("a", "/scratch/Models/a"),
		"b": xModel("b", "/scratch/Models/b"),
	}
	e := New(zerolog.Nop(), eval, models, NewClient(fs, exec, "tfjs", zerolog.Nop()))

	out, err := e.Extract(context.Background(), extract.Extracts{extract.FeaturesKey: xFeatures(1, 2)})
	require.NoError(t, err)
	exec.AssertExpectations(t)

	preds, err := out.Predictions()
	require.NoError(t, err)
	require.Len(t, preds, 2)
	for i, p := range preds {
		require.Len(t, p.Fields, 2)
		assert.Equal(t, []float32{float32(i + 1)}, p.Fields["a"].Value.Float32s())
		assert.Equal(t, []float32{float32(i + 1)}, p.Fields["b"].Value.Float32s())
	}
}

func TestExtractor_ProcessFailureFailsBatch(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, "tfjs", mock.Anything).
		Return(Result{ExitCode: 1, Stderr: []byte("Error: Cannot read model")}, nil)

	eval := config.EvalConfig{ModelSpecs: []config.ModelSpec{{Name: "m"}}}
	e := New(zerolog.Nop(), eval, map[string]*Model{"": xModel("m", "/scratch/Models")},
		NewClient(afero.NewMemMapFs(), exec, "tfjs", zerolog.Nop()))

	out, err := e.Extract(context.Background(), extract.Extracts{extract.FeaturesKey: xFeatures(1, 2, 3)})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "Error: Cannot read model")
	assert.True(t, errors.Is(err, extract.ErrInferenceFailed))
}

func TestExtractor_RowCountMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, "tfjs", mock.Anything).
		Run(respond(t, fs, `[{"0":1,"1":2}]`, `["float32"]`, `[[2,1]]`)).
		Return(Result{}, nil)

	eval := config.EvalConfig{ModelSpecs: []config.ModelSpec{{Name: "m"}}}
	e := New(zerolog.Nop(), eval, map[string]*Model{"": xModel("m", "/scratch/Models")},
		NewClient(fs, exec, "tfjs", zerolog.Nop()))

	_, err := e.Extract(context.Background(), extract.Extracts{extract.FeaturesKey: xFeatures(1, 2, 3)})
	assert.True(t, errors.Is(err, extract.ErrRowCountMismatch))
}

func TestExtractor_InputErrors(t *testing.T) {
	eval := config.EvalConfig{ModelSpecs: []config.ModelSpec{{Name: "m"}}}
	matrix := tensor.Must(tensor.FromFloat32([]int{1, 1, 1}, []float32{1}))

	tests := []struct {
		name   string
		models map[string]*Model
		feats  []extract.Features
		want   error
	}{
		{"unknown model", map[string]*Model{"other": xModel("other", "/o")}, xFeatures(1), extract.ErrModelNotFound},
		{"missing feature", map[string]*Model{"": xModel("m", "/m")}, []extract.Features{{"y": matrix}}, extract.ErrMissingFeature},
		{"null feature", map[string]*Model{"": xModel("m", "/m")}, []extract.Features{{"x": nil}}, extract.ErrMissingFeature},
		{"rank too high", map[string]*Model{"": xModel("m", "/m")}, []extract.Features{{"x": matrix}}, extract.ErrShapeMismatch},
		{"size mismatch", map[string]*Model{"": {Name: "m", Dir: "/m", Signature: &Signature{
			Inputs: []TensorShape{{Name: "x", Dims: []int{1, 2}}},
		}}}, xFeatures(1), extract.ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{}
			e := New(zerolog.Nop(), eval, tt.models, NewClient(afero.NewMemMapFs(), exec, "tfjs", zerolog.Nop()))
			_, err := e.Extract(context.Background(), extract.Extracts{extract.FeaturesKey: tt.feats})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}
