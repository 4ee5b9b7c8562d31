// internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
)

func setKey(name, key string, value any) Func {
	return Func{Name: name, Fn: func(_ context.Context, in extract.Extracts) (extract.Extracts, error) {
		out := in.Copy()
		out[key] = value
		return out, nil
	}}
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	p := New([]Extractor{
		setKey("First", "a", 1),
		setKey("Second", "a", 2),
		setKey("Third", "b", 3),
	})
	assert.Equal(t, []string{"First", "Second", "Third"}, p.Stages())

	in := extract.Extracts{"seed": true}
	out, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, extract.Extracts{"seed": true, "a": 2, "b": 3}, out)
	assert.Equal(t, extract.Extracts{"seed": true}, in)
}

func TestPipeline_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	called := false
	p := New([]Extractor{
		Func{Name: "Failing", Fn: func(context.Context, extract.Extracts) (extract.Extracts, error) {
			return nil, boom
		}},
		Func{Name: "Never", Fn: func(_ context.Context, in extract.Extracts) (extract.Extracts, error) {
			called = true
			return in, nil
		}},
	})

	_, err := p.Run(context.Background(), extract.Extracts{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, "Failing: boom", err.Error())
	assert.False(t, called)
}

func TestPipeline_MiddlewareOrder(t *testing.T) {
	var trace []string
	mw := func(tag string) Middleware {
		return func(next Extractor) Extractor {
			return Func{Name: next.StageName(), Fn: func(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
				trace = append(trace, tag+">"+next.StageName())
				return next.Extract(ctx, in)
			}}
		}
	}

	p := New([]Extractor{setKey("S1", "k", 1), setKey("S2", "k", 2)}, mw("outer"), mw("inner"))
	_, err := p.Run(context.Background(), extract.Extracts{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer>S1", "inner>S1", "outer>S2", "inner>S2"}, trace)
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New([]Extractor{setKey("S", "k", 1)}).Run(ctx, extract.Extracts{})
	assert.ErrorIs(t, err, context.Canceled)
}
