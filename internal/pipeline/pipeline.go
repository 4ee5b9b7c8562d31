// internal/pipeline/pipeline.go

// Package pipeline chains extractors over one batch of extracts.
package pipeline

import (
	"context"
	"fmt"

	"github.com/SyedDaiam9101/model-evaluator/internal/extract"
)

// Extractor is one stage of the pipeline. Extract returns a new Extracts and
// leaves its input untouched.
type Extractor interface {
	StageName() string
	Extract(ctx context.Context, in extract.Extracts) (extract.Extracts, error)
}

// Middleware wraps an extractor with cross-cutting behavior.
type Middleware func(next Extractor) Extractor

// Func adapts a function to Extractor.
type Func struct {
	Name string
	Fn   func(ctx context.Context, in extract.Extracts) (extract.Extracts, error)
}

func (f Func) StageName() string { return f.Name }

func (f Func) Extract(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
	return f.Fn(ctx, in)
}

// Pipeline runs its stages in order.
type Pipeline struct {
	stages []Extractor
}

// New builds a pipeline. Middlewares are applied to every stage, the first
// one outermost.
func New(stages []Extractor, middlewares ...Middleware) *Pipeline {
	wrapped := make([]Extractor, len(stages))
	for i, s := range stages {
		for j := len(middlewares) - 1; j >= 0; j-- {
			s = middlewares[j](s)
		}
		wrapped[i] = s
	}
	return &Pipeline{stages: wrapped}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.StageName()
	}
	return names
}

// Run passes in through every stage. The first failing stage aborts the
// batch; its error is wrapped with the stage name.
func (p *Pipeline) Run(ctx context.Context, in extract.Extracts) (extract.Extracts, error) {
	cur := in
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.Extract(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.StageName(), err)
		}
		cur = out
	}
	return cur, nil
}
