package scope

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SchemaRecord tags the JSONL records written for scope decisions.
const SchemaRecord = "scope-v1"

// Config is the on-disk scope document.
type Config struct {
	Allowed   []string `yaml:"allowed" json:"allowed"`
	Forbidden []string `yaml:"forbidden" json:"forbidden"`
}

// Load reads a scope file. Files ending in .json are decoded as JSON, anything
// else as YAML.
func Load(file string) (Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read scope file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(file), ".json"))
}

// Parse decodes a scope document.
func Parse(data []byte, isJSON bool) (Config, error) {
	var cfg Config
	var err error
	if isJSON {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse scope file: %w", err)
	}
	return cfg, nil
}

// Decision is the verdict for one host.
type Decision struct {
	Host    string `json:"host"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Record returns the decision as a scope-v1 JSONL record.
func (d Decision) Record(ts time.Time) map[string]any {
	action := "blocked"
	if d.Allowed {
		action = "allowed"
	}
	return map[string]any{
		"schema": SchemaRecord,
		"host":   d.Host,
		"action": action,
		"reason": d.Reason,
		"ts":     ts.UTC().Format(time.RFC3339),
	}
}

// Checker matches hosts against glob patterns. Matching is case-insensitive
// and forbidden patterns always win over allowed ones. An empty allow list
// admits every host that is not forbidden.
type Checker struct {
	allowed   []string
	forbidden []string
}

// NewChecker validates the patterns in cfg.
func NewChecker(cfg Config) (*Checker, error) {
	c := &Checker{}
	var err error
	if c.allowed, err = normalize(cfg.Allowed); err != nil {
		return nil, err
	}
	if c.forbidden, err = normalize(cfg.Forbidden); err != nil {
		return nil, err
	}
	return c, nil
}

func normalize(patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid scope pattern %q: %w", p, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Check decides whether host is in scope.
func (c *Checker) Check(host string) Decision {
	h := strings.ToLower(strings.TrimSpace(host))
	for _, p := range c.forbidden {
		if ok, _ := path.Match(p, h); ok {
			return Decision{Host: host, Reason: "matches forbidden pattern: " + p}
		}
	}
	if len(c.allowed) == 0 {
		return Decision{Host: host, Allowed: true, Reason: "no allowed patterns configured"}
	}
	for _, p := range c.allowed {
		if ok, _ := path.Match(p, h); ok {
			return Decision{Host: host, Allowed: true, Reason: "matches allowed pattern: " + p}
		}
	}
	return Decision{Host: host, Reason: "does not match any allowed pattern"}
}

// Allowed reports whether host is in scope.
func (c *Checker) Allowed(host string) bool {
	return c.Check(host).Allowed
}

// Filter splits hosts into in-scope hosts and the decisions for the rest,
// preserving order.
func (c *Checker) Filter(hosts []string) (allowed []string, blocked []Decision) {
	for _, h := range hosts {
		d := c.Check(h)
		if d.Allowed {
			allowed = append(allowed, h)
			continue
		}
		blocked = append(blocked, d)
	}
	return allowed, blocked
}
