// Package llm adapts language-model backends to a single Executor interface so
// agents can swap providers without touching their control flow.
package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyPrompt is returned when Execute is called with an empty prompt.
var ErrEmptyPrompt = errors.New("llm: empty prompt")

// Executor turns a prompt into text.
type Executor interface {
	Execute(ctx context.Context, prompt string) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, prompt string) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Scripted replays fixed replies in order, for offline demos and tests.
// After the last reply it keeps returning the final one.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

// NewScripted returns an executor that answers with replies in order.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Execute returns the next scripted reply.
func (s *Scripted) Execute(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", nil
	}
	i := len(s.prompts) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

// Prompts returns every prompt received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
