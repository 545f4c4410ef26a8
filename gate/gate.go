package gate

import (
	"context"
	"strings"
)

// Request describes a proposed action for the gates to judge.
type Request struct {
	// Action is what is about to happen, usually the stage name.
	Action string
	// Stage is the pipeline stage requesting the action.
	Stage string
	// Target is the primary host or resource.
	Target string
	// Targets lists every host the action may touch.
	Targets []string
	// Context carries free-form attributes for policy gates.
	Context map[string]any
}

// AllTargets returns Target followed by Targets, without blanks or repeats.
func (r Request) AllTargets() []string {
	seen := make(map[string]struct{}, len(r.Targets)+1)
	out := make([]string, 0, len(r.Targets)+1)
	for _, t := range append([]string{r.Target}, r.Targets...) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Decision is the verdict of one gate.
type Decision struct {
	Gate    string `json:"gate"`
	Action  string `json:"action"`
	Target  string `json:"target"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Record returns the decision as a plain JSON object.
func (d Decision) Record() map[string]any {
	return map[string]any{
		"gate":    d.Gate,
		"action":  d.Action,
		"target":  d.Target,
		"allowed": d.Allowed,
		"reason":  d.Reason,
	}
}

// Gate decides whether an action may proceed. A rejection is a Decision, not
// an error; gates that cannot reach a verdict deny.
type Gate interface {
	Name() string
	Check(ctx context.Context, req Request) Decision
}

func allow(g string, req Request, reason string) Decision {
	return Decision{Gate: g, Action: req.Action, Target: req.Target, Allowed: true, Reason: reason}
}

func deny(g string, req Request, reason string) Decision {
	return Decision{Gate: g, Action: req.Action, Target: req.Target, Allowed: false, Reason: reason}
}

// Func adapts a function to Gate.
type Func struct {
	GateName string
	Fn       func(ctx context.Context, req Request) (bool, string)
}

// Name returns GateName.
func (f Func) Name() string { return f.GateName }

// Check calls Fn.
func (f Func) Check(ctx context.Context, req Request) Decision {
	ok, reason := f.Fn(ctx, req)
	if ok {
		return allow(f.GateName, req, reason)
	}
	return deny(f.GateName, req, reason)
}

// Evaluate runs gates in order and stops at the first block. It returns every
// decision reached and whether the action may proceed. No gates means allow.
func Evaluate(ctx context.Context, req Request, gates ...Gate) ([]Decision, bool) {
	decisions := make([]Decision, 0, len(gates))
	for _, g := range gates {
		d := g.Check(ctx, req)
		if d.Gate == "" {
			d.Gate = g.Name()
		}
		decisions = append(decisions, d)
		if !d.Allowed {
			return decisions, false
		}
	}
	return decisions, true
}

type all struct {
	gates []Gate
}

// All composes gates with a short-circuiting AND. The returned decision is
// the first block, or an allow naming the number of gates passed.
func All(gates ...Gate) Gate {
	return &all{gates: gates}
}

func (a *all) Name() string { return "all" }

func (a *all) Check(ctx context.Context, req Request) Decision {
	decisions, ok := Evaluate(ctx, req, a.gates...)
	if !ok {
		return decisions[len(decisions)-1]
	}
	return allow(a.Name(), req, "all gates passed")
}
