// Package config loads reconpipe settings from defaults, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zero-day-ai/reconpipe/stage"
)

// Config is the complete reconpipe configuration.
type Config struct {
	Run        RunConfig        `koanf:"run"`
	Gates      GatesConfig      `koanf:"gates"`
	Triage     TriageConfig     `koanf:"triage"`
	Recon      ReconConfig      `koanf:"recon"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	KillSwitch KillSwitchConfig `koanf:"killswitch"`
	Alert      AlertConfig      `koanf:"alert"`
	LLM        LLMConfig        `koanf:"llm"`
}

// RunConfig controls the orchestrator.
type RunConfig struct {
	// Dir holds one <run_id>.jsonl log per run.
	Dir     string   `koanf:"dir"`
	Targets []string `koanf:"targets"`

	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`

	// ReportDir, when set, saves the markdown report there.
	ReportDir string `koanf:"report_dir"`
}

// GatesConfig selects the safety gates.
type GatesConfig struct {
	Prohibited     []string      `koanf:"prohibited"`
	Confirm        bool          `koanf:"confirm"`
	ConfirmTimeout time.Duration `koanf:"confirm_timeout"`

	Window WindowConfig `koanf:"window"`

	// ScopeFile is a JSON or YAML file with allowed and forbidden patterns.
	ScopeFile string `koanf:"scope_file"`

	ApprovalStages []string `koanf:"approval_stages"`
	AutoApprove    bool     `koanf:"auto_approve"`

	// Environment blocks runs from hosts that look like production.
	Environment bool `koanf:"environment"`

	// Policies maps a name to a CEL expression that must evaluate to true.
	Policies map[string]string `koanf:"policies"`
}

// WindowConfig is the allowed execution window.
type WindowConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Start    string   `koanf:"start"`
	End      string   `koanf:"end"`
	Days     []string `koanf:"days"`
	Location string   `koanf:"location"`
}

// TriageConfig tunes scoring.
type TriageConfig struct {
	Thresholds stage.Thresholds `koanf:"thresholds"`
	// Weights overrides rule points by rule name.
	Weights map[string]int `koanf:"weights"`
}

// ReconConfig controls live probing.
type ReconConfig struct {
	Timeout        time.Duration `koanf:"timeout"`
	UserAgent      string        `koanf:"user_agent"`
	Output         string        `koanf:"output"`
	RatePerSecond  float64       `koanf:"rate_per_second"`
	Burst          int           `koanf:"burst"`
	IncludeTLS     bool          `koanf:"include_tls"`
	IncludeContent bool          `koanf:"include_content"`
}

// Checkpoint backends.
const (
	BackendNone   = "none"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// CheckpointConfig selects where checkpoints are kept.
type CheckpointConfig struct {
	Backend  string        `koanf:"backend"`
	Dir      string        `koanf:"dir"`
	RedisURL string        `koanf:"redis_url"`
	Path     string        `koanf:"path"`
	TTL      time.Duration `koanf:"ttl"`
}

// KillSwitchConfig configures the stop sources.
type KillSwitchConfig struct {
	// Stdin trips the switch when an operator types STOP.
	Stdin         bool          `koanf:"stdin"`
	EtcdEndpoints []string      `koanf:"etcd_endpoints"`
	EtcdKey       string        `koanf:"etcd_key"`
	DialTimeout   time.Duration `koanf:"dial_timeout"`
}

// AlertConfig configures failure alerts.
type AlertConfig struct {
	Threshold    int    `koanf:"threshold"`
	RedisURL     string `koanf:"redis_url"`
	RedisChannel string `koanf:"redis_channel"`
}

// LLMConfig selects the language model backend for agent commands.
type LLMConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	Token    string `koanf:"token"`
	MaxSteps int    `koanf:"max_steps"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Run: RunConfig{
			Dir:         "runs",
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    60 * time.Second,
		},
		Gates: GatesConfig{
			Prohibited: []string{"prod", "payment", "core-db"},
			Window:     WindowConfig{Start: "09:00", End: "17:00", Location: "UTC"},
		},
		Triage: TriageConfig{Thresholds: stage.DefaultThresholds()},
		Recon: ReconConfig{
			Timeout:       4 * time.Second,
			UserAgent:     "ReconSnap/1.0",
			Output:        "runs/recon.jsonl",
			RatePerSecond: 5,
			Burst:         1,
		},
		Checkpoint: CheckpointConfig{Backend: BackendFile, Dir: "runs/checkpoints"},
		KillSwitch: KillSwitchConfig{EtcdKey: "/reconpipe/killswitch", DialTimeout: 5 * time.Second},
		Alert:      AlertConfig{Threshold: 1, RedisChannel: "reconpipe:alerts"},
		LLM:        LLMConfig{Provider: "ollama", Model: "llama3", MaxSteps: 5},
	}
}

// Validate checks value ranges and required fields.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Run.Dir) == "" {
		errs = append(errs, errors.New("run.dir is required"))
	}
	if c.Run.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("run.max_attempts must be at least 1, got %d", c.Run.MaxAttempts))
	}
	if c.Run.BaseDelay < 0 || c.Run.MaxDelay < 0 {
		errs = append(errs, errors.New("run delays must not be negative"))
	}
	if err := c.Triage.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("triage.thresholds: %w", err))
	}
	if c.Recon.Timeout <= 0 {
		errs = append(errs, errors.New("recon.timeout must be positive"))
	}
	if c.Recon.RatePerSecond <= 0 {
		errs = append(errs, errors.New("recon.rate_per_second must be positive"))
	}
	switch c.Checkpoint.Backend {
	case BackendNone:
	case BackendFile:
		if c.Checkpoint.Dir == "" {
			errs = append(errs, errors.New("checkpoint.dir is required for the file backend"))
		}
	case BackendRedis:
		if c.Checkpoint.RedisURL == "" {
			errs = append(errs, errors.New("checkpoint.redis_url is required for the redis backend"))
		}
	case BackendSQLite:
		if c.Checkpoint.Path == "" {
			errs = append(errs, errors.New("checkpoint.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint.backend %q", c.Checkpoint.Backend))
	}
	if c.Alert.Threshold < 1 {
		errs = append(errs, fmt.Errorf("alert.threshold must be at least 1, got %d", c.Alert.Threshold))
	}
	if c.Gates.Window.Enabled && (c.Gates.Window.Start == "" || c.Gates.Window.End == "") {
		errs = append(errs, errors.New("gates.window needs start and end when enabled"))
	}
	return errors.Join(errs...)
}
