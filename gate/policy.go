package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// Policy evaluates a CEL expression that must return a bool. The expression
// sees action, stage, target, targets, hour, weekday (0 = Sunday) and
// context.
//
//	p, err := gate.NewPolicy("no-weekend-scans", `weekday != 0 && weekday != 6`)
type Policy struct {
	name string
	expr string
	prg  cel.Program
	now  func() time.Time
}

// NewPolicy compiles expr.
func NewPolicy(name, expr string) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("stage", cel.StringType),
		cel.Variable("target", cel.StringType),
		cel.Variable("targets", cel.ListType(cel.StringType)),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %q: %w", name, iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy %q: %w", name, err)
	}
	return &Policy{name: name, expr: expr, prg: prg, now: time.Now}, nil
}

// WithClock replaces time.Now for hour and weekday.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// Name implements Gate.
func (p *Policy) Name() string { return "policy:" + p.name }

// Check implements Gate. Evaluation errors and non-bool results deny.
func (p *Policy) Check(_ context.Context, req Request) Decision {
	now := p.now().UTC()
	ctxVars := req.Context
	if ctxVars == nil {
		ctxVars = map[string]any{}
	}
	targets := req.AllTargets()
	out, _, err := p.prg.Eval(map[string]any{
		"action":  req.Action,
		"stage":   req.Stage,
		"target":  req.Target,
		"targets": targets,
		"hour":    int64(now.Hour()),
		"weekday": int64(now.Weekday()),
		"context": ctxVars,
	})
	if err != nil {
		return deny(p.Name(), req, "policy evaluation failed: "+err.Error())
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return deny(p.Name(), req, fmt.Sprintf("policy returned %T, want bool", out.Value()))
	}
	if !ok {
		return deny(p.Name(), req, "policy rejected: "+p.expr)
	}
	return allow(p.Name(), req, "policy satisfied")
}
