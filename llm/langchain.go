package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zero-day-ai/reconpipe/resilience"
)

// LangChain executes prompts against any langchaingo model.
type LangChain struct {
	model       llms.Model
	limiter     *rate.Limiter
	policy      resilience.Policy
	callOptions []llms.CallOption
	logger      *zap.Logger
}

// Option configures a LangChain executor.
type Option func(*LangChain)

// WithRateLimit caps calls to rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(l *LangChain) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			l.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRetry sets the retry policy applied to each call.
func WithRetry(p resilience.Policy) Option {
	return func(l *LangChain) { l.policy = p }
}

// WithCallOptions appends langchaingo call options such as llms.WithTemperature.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(l *LangChain) { l.callOptions = append(l.callOptions, opts...) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *LangChain) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLangChain wraps model. By default a call is attempted once.
func NewLangChain(model llms.Model, opts ...Option) *LangChain {
	l := &LangChain{
		model:  model,
		policy: resilience.Policy{MaxAttempts: 1},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute sends prompt as a single human message and returns the first choice.
func (l *LangChain) Execute(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	return resilience.Do(ctx, l.policy, func(ctx context.Context) (string, error) {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return "", resilience.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}
		out, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt, l.callOptions...)
		if err != nil {
			l.logger.Debug("llm call failed", zap.Error(err))
			return "", fmt.Errorf("llm generate: %w", err)
		}
		return out, nil
	})
}

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	// Provider is "openai" or "ollama".
	Provider string
	Model    string
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateway or
	// Ollama server URL).
	BaseURL string
	// Token is the API key; OpenAI falls back to OPENAI_API_KEY when empty.
	Token string
}

// NewFromConfig builds a LangChain executor for the configured provider.
func NewFromConfig(cfg ProviderConfig, opts ...Option) (*LangChain, error) {
	var (
		model llms.Model
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		var o []openai.Option
		if cfg.Model != "" {
			o = append(o, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			o = append(o, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Token != "" {
			o = append(o, openai.WithToken(cfg.Token))
		}
		model, err = openai.New(o...)
	case "ollama":
		var o []ollama.Option
		if cfg.Model != "" {
			o = append(o, ollama.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			o = append(o, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(o...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return NewLangChain(model, opts...), nil
}
