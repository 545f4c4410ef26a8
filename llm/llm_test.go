package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/zero-day-ai/reconpipe/resilience"
)

type fakeModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range messages {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, tc.Text)
			}
		}
	}
	i := len(f.prompts) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChain_Execute(t *testing.T) {
	model := &fakeModel{replies: []string{"pong"}}
	ex := NewLangChain(model)

	out, err := ex.Execute(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, []string{"ping"}, model.prompts)
}

func TestLangChain_EmptyPrompt(t *testing.T) {
	model := &fakeModel{}
	_, err := NewLangChain(model).Execute(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, model.prompts)
}

func TestLangChain_Retry(t *testing.T) {
	model := &fakeModel{
		errs:    []error{errors.New("503"), errors.New("503"), nil},
		replies: []string{"", "", "ok"},
	}
	ex := NewLangChain(model, WithRetry(resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}))

	out, err := ex.Execute(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Len(t, model.prompts, 3)
}

func TestLangChain_NoRetryByDefault(t *testing.T) {
	model := &fakeModel{errs: []error{errors.New("503")}}
	_, err := NewLangChain(model).Execute(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm generate")
	assert.Len(t, model.prompts, 1)
}

func TestLangChain_RateLimitHonoursContext(t *testing.T) {
	model := &fakeModel{replies: []string{"a", "b"}}
	ex := NewLangChain(model,
		WithRateLimit(0.001, 1),
		WithRetry(resilience.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}))

	_, err := ex.Execute(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = ex.Execute(ctx, "second")
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Len(t, model.prompts, 1)
}

func TestNewFromConfig_UnknownProvider(t *testing.T) {
	_, err := NewFromConfig(ProviderConfig{Provider: "carrier-pigeon"})
	assert.EqualError(t, err, `unknown llm provider "carrier-pigeon"`)
}

func TestNewFromConfig_Ollama(t *testing.T) {
	ex, err := NewFromConfig(ProviderConfig{Provider: "ollama", Model: "llama3", BaseURL: "http://127.0.0.1:11434"})
	require.NoError(t, err)
	assert.NotNil(t, ex)
}

func TestScripted(t *testing.T) {
	s := NewScripted("one", "two")
	ctx := context.Background()

	for _, want := range []string{"one", "two", "two"} {
		got, err := s.Execute(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Len(t, s.Prompts(), 3)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := s.Execute(cancelled, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutorFunc(t *testing.T) {
	var ex Executor = ExecutorFunc(func(_ context.Context, p string) (string, error) { return "re: " + p, nil })
	out, err := ex.Execute(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "re: x", out)
}
