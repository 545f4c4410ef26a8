package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides. RECONPIPE_RUN_MAX_ATTEMPTS sets
// run.max_attempts; RECONPIPE_GATES_WINDOW_START sets gates.window.start.
const EnvPrefix = "RECONPIPE_"

var sections = map[string][]string{
	"run":        nil,
	"gates":      {"window"},
	"triage":     {"thresholds"},
	"recon":      nil,
	"checkpoint": nil,
	"killswitch": nil,
	"alert":      nil,
	"llm":        nil,
}

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"run.targets":               true,
	"gates.prohibited":          true,
	"gates.approval_stages":     true,
	"gates.window.days":         true,
	"killswitch.etcd_endpoints": true,
}

// Load reads path (when non-empty), then the environment, and returns the
// validated result. A named file that does not exist is an error.
//
// The unprefixed variables PROHIBITED_HOSTS, RECON_TIMEOUT (seconds),
// RECON_USER_AGENT and RECON_OUT are honoured below the RECONPIPE_ ones.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyEnv), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedEnv), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg, k)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// EnvKey maps an environment variable to its dotted config key, or "" when
// the variable is not a reconpipe setting.
func EnvKey(name string) string {
	if !strings.HasPrefix(name, EnvPrefix) {
		return ""
	}
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok || field == "" {
		return ""
	}
	nested, known := sections[section]
	if !known {
		return ""
	}
	for _, sub := range nested {
		if rest, ok := strings.CutPrefix(field, sub+"_"); ok && rest != "" {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

func prefixedEnv(name, value string) (string, any) {
	key := EnvKey(name)
	if key == "" {
		return "", nil
	}
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func legacyEnv(name, value string) (string, any) {
	switch name {
	case "PROHIBITED_HOSTS":
		return "gates.prohibited", splitList(value)
	case "RECON_TIMEOUT":
		// Bare numbers are seconds; anything else must parse as a duration.
		if secs, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return "recon.timeout", strconv.FormatFloat(secs, 'f', -1, 64) + "s"
		}
		return "recon.timeout", value
	case "RECON_USER_AGENT":
		return "recon.user_agent", value
	case "RECON_OUT":
		return "recon.output", value
	}
	return "", nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyDefaults fills unset values from Default. Lists only take their
// default when the key is absent, so an explicit empty list stays empty.
func applyDefaults(cfg *Config, k *koanf.Koanf) {
	def := Default()

	if cfg.Run.Dir == "" {
		cfg.Run.Dir = def.Run.Dir
	}
	if cfg.Run.MaxAttempts == 0 {
		cfg.Run.MaxAttempts = def.Run.MaxAttempts
	}
	if !k.Exists("run.base_delay") {
		cfg.Run.BaseDelay = def.Run.BaseDelay
	}
	if !k.Exists("run.max_delay") {
		cfg.Run.MaxDelay = def.Run.MaxDelay
	}

	if !k.Exists("gates.prohibited") {
		cfg.Gates.Prohibited = def.Gates.Prohibited
	}
	if cfg.Gates.Window.Start == "" {
		cfg.Gates.Window.Start = def.Gates.Window.Start
	}
	if cfg.Gates.Window.End == "" {
		cfg.Gates.Window.End = def.Gates.Window.End
	}
	if cfg.Gates.Window.Location == "" {
		cfg.Gates.Window.Location = def.Gates.Window.Location
	}

	if !k.Exists("triage.thresholds.high") {
		cfg.Triage.Thresholds.High = def.Triage.Thresholds.High
	}
	if !k.Exists("triage.thresholds.medium") {
		cfg.Triage.Thresholds.Medium = def.Triage.Thresholds.Medium
	}

	if cfg.Recon.Timeout == 0 {
		cfg.Recon.Timeout = def.Recon.Timeout
	}
	if cfg.Recon.UserAgent == "" {
		cfg.Recon.UserAgent = def.Recon.UserAgent
	}
	if cfg.Recon.Output == "" {
		cfg.Recon.Output = def.Recon.Output
	}
	if cfg.Recon.RatePerSecond == 0 {
		cfg.Recon.RatePerSecond = def.Recon.RatePerSecond
	}
	if cfg.Recon.Burst == 0 {
		cfg.Recon.Burst = def.Recon.Burst
	}

	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = def.Checkpoint.Backend
	}
	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = def.Checkpoint.Dir
	}

	if cfg.KillSwitch.EtcdKey == "" {
		cfg.KillSwitch.EtcdKey = def.KillSwitch.EtcdKey
	}
	if cfg.KillSwitch.DialTimeout == 0 {
		cfg.KillSwitch.DialTimeout = def.KillSwitch.DialTimeout
	}

	if cfg.Alert.Threshold == 0 {
		cfg.Alert.Threshold = def.Alert.Threshold
	}
	if cfg.Alert.RedisChannel == "" {
		cfg.Alert.RedisChannel = def.Alert.RedisChannel
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.MaxSteps == 0 {
		cfg.LLM.MaxSteps = def.LLM.MaxSteps
	}
}
