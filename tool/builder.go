package tool

import (
	"context"
	"errors"

	"github.com/zero-day-ai/reconpipe/health"
)

// InvokeFunc is the function signature for tool execution.
type InvokeFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// HealthFunc reports the health of a built tool.
type HealthFunc func(ctx context.Context) health.Status

// Config holds the configuration for building a tool from functions.
// Use NewConfig and the setters, then call New.
type Config struct {
	name        string
	description string
	invoke      InvokeFunc
	health      HealthFunc
}

// NewConfig creates an empty tool configuration.
func NewConfig() *Config {
	return &Config{}
}

// SetName sets the tool name.
func (c *Config) SetName(name string) *Config {
	c.name = name
	return c
}

// SetDescription sets the tool description.
func (c *Config) SetDescription(desc string) *Config {
	c.description = desc
	return c
}

// SetInvokeFunc sets the function called by Invoke.
func (c *Config) SetInvokeFunc(fn InvokeFunc) *Config {
	c.invoke = fn
	return c
}

// SetHealthFunc sets the function called by Health.
func (c *Config) SetHealthFunc(fn HealthFunc) *Config {
	c.health = fn
	return c
}

type funcTool struct {
	name        string
	description string
	invoke      InvokeFunc
	health      HealthFunc
}

// New builds a Tool from cfg. A name and an invoke function are required.
//
// Example:
//
//	t, err := tool.New(tool.NewConfig().
//	    SetName("echo").
//	    SetDescription("returns its input").
//	    SetInvokeFunc(func(ctx context.Context, in map[string]any) (map[string]any, error) {
//	        return in, nil
//	    }))
func New(cfg *Config) (Tool, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.name == "" {
		return nil, errors.New("tool name is required")
	}
	if cfg.invoke == nil {
		return nil, errors.New("invoke function is required")
	}
	return &funcTool{
		name:        cfg.name,
		description: cfg.description,
		invoke:      cfg.invoke,
		health:      cfg.health,
	}, nil
}

// MustNew is New for package-level tool definitions; it panics on error.
func MustNew(cfg *Config) Tool {
	t, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }

func (t *funcTool) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	return t.invoke(ctx, input)
}

func (t *funcTool) Health(ctx context.Context) health.Status {
	if t.health == nil {
		return health.Healthy("no external dependencies")
	}
	return t.health(ctx)
}
