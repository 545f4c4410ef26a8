package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zero-day-ai/reconpipe/artifact"
)

// Stage is one named step of a pipeline. Run receives the previous artifact
// (nil for the first stage) and returns a new one. A stage never decides what
// runs after it.
type Stage interface {
	Name() string
	Run(ctx context.Context, prev *artifact.Artifact) (*artifact.Artifact, error)
}

// Targeter is implemented by stages that know which hosts they will touch
// before running. Targets receives the same previous artifact Run will get,
// so the hosts gates check are the hosts the stage processes.
type Targeter interface {
	Targets(prev *artifact.Artifact) []string
}

// RunFunc produces a stage's output from the previous artifact.
type RunFunc func(ctx context.Context, prev *artifact.Artifact) (map[string]any, error)

type funcStage struct {
	name string
	fn   RunFunc
}

// NewFunc adapts fn into a Stage whose artifact is chained onto prev.
func NewFunc(name string, fn RunFunc) Stage {
	return &funcStage{name: name, fn: fn}
}

func (s *funcStage) Name() string { return s.name }

func (s *funcStage) Run(ctx context.Context, prev *artifact.Artifact) (*artifact.Artifact, error) {
	out, err := s.fn(ctx, prev)
	if err != nil {
		return nil, err
	}
	return artifact.Next(prev, s.name, out), nil
}

// Option configures the built-in stages.
type Option func(*base)

type base struct {
	logger *zap.Logger
	now    func() time.Time
}

func newBase(opts []Option) base {
	b := base{logger: zap.NewNop(), now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithLogger sets the stage logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// input returns prev's output or an empty map.
func input(prev *artifact.Artifact) map[string]any {
	if prev == nil || prev.Output == nil {
		return map[string]any{}
	}
	return prev.Output
}
