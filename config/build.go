package config

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zero-day-ai/reconpipe/gate"
	"github.com/zero-day-ai/reconpipe/killswitch"
	"github.com/zero-day-ai/reconpipe/llm"
	"github.com/zero-day-ai/reconpipe/recon"
	"github.com/zero-day-ai/reconpipe/resilience"
	"github.com/zero-day-ai/reconpipe/scope"
	"github.com/zero-day-ai/reconpipe/stage"
)

// ErrNoPrompt is returned when a gate needs an operator but none is wired.
var ErrNoPrompt = errors.New("config: gate requires an operator prompt")

// RetryPolicy returns the stage retry policy.
func (c Config) RetryPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts: c.Run.MaxAttempts,
		BaseDelay:   c.Run.BaseDelay,
		MaxDelay:    c.Run.MaxDelay,
	}
}

// Scope loads the scope file, or returns nil when none is configured.
func (c Config) Scope() (*scope.Checker, error) {
	if c.Gates.ScopeFile == "" {
		return nil, nil
	}
	doc, err := scope.Load(c.Gates.ScopeFile)
	if err != nil {
		return nil, err
	}
	return scope.NewChecker(doc)
}

// BuildGates assembles the configured gates in evaluation order: environment,
// denylist with optional confirmation, time window, scope, stage approval,
// then CEL policies sorted by name. prompt may be nil when neither
// confirmation nor interactive approval is enabled.
func (c Config) BuildGates(prompt gate.PromptFunc) ([]gate.Gate, error) {
	g := c.Gates
	var gates []gate.Gate

	if g.Environment {
		gates = append(gates, gate.NewEnvironment())
	}

	var confirm *gate.Confirm
	if g.Confirm {
		if prompt == nil {
			return nil, fmt.Errorf("gates.confirm: %w", ErrNoPrompt)
		}
		confirm = gate.NewConfirm(prompt, gate.WithTimeout(g.ConfirmTimeout))
	}
	gates = append(gates, gate.NewSafety(gate.NewProhibited(g.Prohibited...), confirm))

	if g.Window.Enabled {
		w, err := c.window()
		if err != nil {
			return nil, err
		}
		gates = append(gates, w)
	}

	checker, err := c.Scope()
	if err != nil {
		return nil, err
	}
	if checker != nil {
		gates = append(gates, gate.NewScope(checker))
	}

	if len(g.ApprovalStages) > 0 {
		if prompt == nil && !g.AutoApprove {
			return nil, fmt.Errorf("gates.approval_stages: %w", ErrNoPrompt)
		}
		gates = append(gates, gate.NewApproval(prompt, g.ApprovalStages, g.AutoApprove))
	}

	names := make([]string, 0, len(g.Policies))
	for name := range g.Policies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p, err := gate.NewPolicy(name, g.Policies[name])
		if err != nil {
			return nil, err
		}
		gates = append(gates, p)
	}
	return gates, nil
}

func (c Config) window() (*gate.TimeWindow, error) {
	w := c.Gates.Window
	loc, err := time.LoadLocation(w.Location)
	if err != nil {
		return nil, fmt.Errorf("gates.window.location: %w", err)
	}
	opts := []gate.WindowOption{gate.WithLocation(loc)}
	if len(w.Days) > 0 {
		days, err := gate.ParseWeekdays(w.Days)
		if err != nil {
			return nil, fmt.Errorf("gates.window.days: %w", err)
		}
		opts = append(opts, gate.WithDays(days...))
	}
	return gate.NewTimeWindow(w.Start, w.End, opts...)
}

// TriageStage builds the triage stage with the configured weights and thresholds.
func (c Config) TriageStage(opts ...stage.Option) (*stage.Triage, error) {
	rules, err := stage.WithWeights(stage.DefaultRules(), c.Triage.Weights)
	if err != nil {
		return nil, err
	}
	return stage.NewTriage(rules, c.Triage.Thresholds, opts...), nil
}

// CheckpointStore opens the configured backend. It returns nil for "none".
// Stores that hold connections implement io.Closer.
func (c Config) CheckpointStore() (resilience.CheckpointStore, error) {
	cp := c.Checkpoint
	switch cp.Backend {
	case BackendNone:
		return nil, nil
	case BackendFile:
		return resilience.NewFileStore(cp.Dir), nil
	case BackendRedis:
		s, err := resilience.NewRedisStore(resilience.RedisOptions{URL: cp.RedisURL, TTL: cp.TTL})
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := resilience.NewSQLiteStore(cp.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint.backend %q", cp.Backend)
	}
}

// AlertHandler builds the failure alert handler. When alert.redis_url is set
// alerts are also published on alert.redis_channel; the returned closer
// releases that connection and is never nil.
func (c Config) AlertHandler(logger *zap.Logger, meter metric.Meter) (*resilience.AlertHandler, io.Closer, error) {
	opts := []resilience.AlertOption{
		resilience.WithThreshold(c.Alert.Threshold),
		resilience.WithAlertLogger(logger),
		resilience.WithMeter(meter),
	}
	var closer io.Closer = nopCloser{}
	if c.Alert.RedisURL != "" {
		client, err := resilience.NewRedisClient(resilience.RedisOptions{URL: c.Alert.RedisURL})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, resilience.WithSink(resilience.RedisPublisher(client, c.Alert.RedisChannel, logger)))
		closer = client
	}
	return resilience.NewAlertHandler(opts...), closer, nil
}

// ProberOptions maps the recon section onto prober options.
func (c Config) ProberOptions(logger *zap.Logger) []recon.ProberOption {
	return []recon.ProberOption{
		recon.WithTimeout(c.Recon.Timeout),
		recon.WithUserAgent(c.Recon.UserAgent),
		recon.WithRateLimit(rate.Limit(c.Recon.RatePerSecond), c.Recon.Burst),
		recon.WithLogger(logger),
	}
}

// Etcd returns the distributed kill switch settings, and false when no
// endpoints are configured.
func (c Config) Etcd() (killswitch.EtcdConfig, bool) {
	ks := c.KillSwitch
	return killswitch.EtcdConfig{
		Endpoints:   ks.EtcdEndpoints,
		Key:         ks.EtcdKey,
		DialTimeout: ks.DialTimeout,
	}, len(ks.EtcdEndpoints) > 0
}

// Provider returns the LLM backend settings.
func (c Config) Provider() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		BaseURL:  c.LLM.BaseURL,
		Token:    c.LLM.Token,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
