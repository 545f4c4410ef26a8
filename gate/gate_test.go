package gate

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/reconpipe/scope"
)

type countingPrompt struct {
	calls   int
	answer  string
	err     error
	prompts []string
}

func (c *countingPrompt) fn(_ context.Context, prompt string) (string, error) {
	c.calls++
	c.prompts = append(c.prompts, prompt)
	return c.answer, c.err
}

func TestSafety_ProhibitedNeverPrompts(t *testing.T) {
	targets := []string{
		"prod.example.com",
		"api.PROD.example.com",
		"payment-gw.internal",
		"core-db-01",
		"my-production-host",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			p := &countingPrompt{answer: "y"}
			g := NewSafety(NewDefaultProhibited(), NewConfirm(p.fn))

			d := g.Check(context.Background(), Request{Action: "scan", Target: target})
			assert.False(t, d.Allowed)
			assert.Equal(t, "safety", d.Gate)
			assert.Contains(t, d.Reason, "prohibited pattern")
			assert.Equal(t, 0, p.calls)
		})
	}
}

func TestSafety_ProhibitedInTargetList(t *testing.T) {
	p := &countingPrompt{answer: "y"}
	g := NewSafety(NewProhibited("payment"), NewConfirm(p.fn))

	d := g.Check(context.Background(), Request{Action: "recon", Targets: []string{"www.example.com", "payment.example.com"}})
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, p.calls)
}

func TestConfirm_Answers(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"y", true},
		{"Y", true},
		{"yes", true},
		{"  Yes please", true},
		{"yolo", true},
		{"n", false},
		{"no", false},
		{"", false},
		{"sure", false},
		{"ok", false},
		{" ", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			p := &countingPrompt{answer: tt.answer}
			d := NewSafety(NewDefaultProhibited(), NewConfirm(p.fn)).
				Check(context.Background(), Request{Action: "scan", Target: "dev.example.com"})
			assert.Equal(t, tt.want, d.Allowed)
			assert.Equal(t, 1, p.calls)
			assert.Equal(t, []string{"Approve 'scan' on dev.example.com? (y/n): "}, p.prompts)
		})
	}
}

func TestConfirm_PromptErrorDenies(t *testing.T) {
	p := &countingPrompt{err: io.EOF}
	d := NewConfirm(p.fn).Check(context.Background(), Request{Action: "scan", Target: "a.test"})
	assert.False(t, d.Allowed)
	assert.Equal(t, "confirmation failed: EOF", d.Reason)
}

func TestConfirm_Timeout(t *testing.T) {
	waiting := func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	d := NewConfirm(waiting, WithTimeout(10*time.Millisecond)).
		Check(context.Background(), Request{Action: "scan", Target: "a.test"})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, context.DeadlineExceeded.Error())
}

func TestReaderPrompt(t *testing.T) {
	var out strings.Builder
	prompt := ReaderPrompt(strings.NewReader("yes\nno"), &out)
	ctx := context.Background()

	a, err := prompt(ctx, "first? ")
	require.NoError(t, err)
	assert.Equal(t, "yes", a)

	a, err = prompt(ctx, "second? ")
	require.NoError(t, err)
	assert.Equal(t, "no", a)

	_, err = prompt(ctx, "third? ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "first? second? third? ", out.String())
}

func TestReaderPrompt_AbandonedPromptKeepsNextAnswer(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var out strings.Builder
	prompt := ReaderPrompt(pr, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := prompt(ctx, "first? ")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Answer to the abandoned prompt, typed before the next one appears.
	_, err = pw.Write([]byte("late\n"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = pw.Write([]byte("yes\n"))
	}()
	answer, err := prompt(context.Background(), "second? ")
	require.NoError(t, err)
	assert.Equal(t, "yes", answer)
}

func TestConfirm_TimeoutDoesNotConsumeNextAnswer(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var out strings.Builder
	c := NewConfirm(ReaderPrompt(pr, &out), WithTimeout(100*time.Millisecond))
	req := Request{Action: "recon", Target: "dev.example.com"}

	d := c.Check(context.Background(), req)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "deadline exceeded")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = pw.Write([]byte("y\n"))
	}()
	d = c.Check(context.Background(), req)
	assert.True(t, d.Allowed, d.Reason)
}

func TestScopeGate_ForbiddenBeatsAllowed(t *testing.T) {
	checker, err := scope.NewChecker(scope.Config{
		Allowed:   []string{"*.example.com"},
		Forbidden: []string{"prod.example.com"},
	})
	require.NoError(t, err)
	g := NewScope(checker)
	ctx := context.Background()

	d := g.Check(ctx, Request{Action: "recon", Target: "prod.example.com"})
	assert.False(t, d.Allowed)
	assert.Equal(t, "prod.example.com: matches forbidden pattern: prod.example.com", d.Reason)

	assert.True(t, g.Check(ctx, Request{Action: "recon", Target: "www.example.com"}).Allowed)
	assert.False(t, g.Check(ctx, Request{Action: "recon", Targets: []string{"www.example.com", "x.org"}}).Allowed)
	assert.True(t, g.Check(ctx, Request{Action: "normalize"}).Allowed)
}

func TestTimeWindow(t *testing.T) {
	at := func(day, hour, minute int) func() time.Time {
		return func() time.Time { return time.Date(2024, 5, day, hour, minute, 0, 0, time.UTC) }
	}
	ctx := context.Background()
	req := Request{Action: "scan"}

	business := func(now func() time.Time) *TimeWindow { return BusinessHours(WithClock(now)) }
	assert.True(t, business(at(6, 9, 0)).Check(ctx, req).Allowed, "monday at start")
	assert.True(t, business(at(6, 16, 59)).Check(ctx, req).Allowed)
	assert.False(t, business(at(6, 17, 0)).Check(ctx, req).Allowed, "end is exclusive")
	assert.False(t, business(at(6, 8, 59)).Check(ctx, req).Allowed)

	sat := business(at(4, 12, 0)).Check(ctx, req)
	assert.False(t, sat.Allowed)
	assert.Equal(t, "Saturday is outside allowed days", sat.Reason)

	night, err := NewTimeWindow("22:00", "06:00", WithClock(at(4, 23, 30)))
	require.NoError(t, err)
	assert.True(t, night.Check(ctx, req).Allowed)
	assert.True(t, night.Contains(time.Date(2024, 5, 4, 5, 59, 0, 0, time.UTC)))
	assert.False(t, night.Contains(time.Date(2024, 5, 4, 6, 0, 0, 0, time.UTC)))
	assert.False(t, night.Contains(time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)))

	allDay, err := NewTimeWindow("00:00", "00:00")
	require.NoError(t, err)
	assert.True(t, allDay.Contains(time.Now()))

	_, err = NewTimeWindow("9am", "17:00")
	assert.Error(t, err)
}

func TestTimeWindow_Location(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	w, err := NewTimeWindow("09:00", "17:00", WithLocation(loc),
		WithClock(func() time.Time { return time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)
	assert.True(t, w.Check(context.Background(), Request{}).Allowed)
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays([]string{"mon", "Friday", "SUN"})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday, time.Sunday}, days)

	_, err = ParseWeekdays([]string{"someday"})
	assert.Error(t, err)
}

func TestApproval(t *testing.T) {
	ctx := context.Background()

	p := &countingPrompt{answer: "yes"}
	g := NewApproval(p.fn, []string{"recon"}, false)
	assert.True(t, g.Check(ctx, Request{Stage: "normalize"}).Allowed)
	assert.Equal(t, 0, p.calls)
	assert.True(t, g.Check(ctx, Request{Stage: "recon"}).Allowed)
	assert.Equal(t, 1, p.calls)

	p.answer = "yeah"
	assert.False(t, g.Check(ctx, Request{Stage: "recon"}).Allowed)

	p.err = io.EOF
	assert.False(t, g.Check(ctx, Request{Stage: "recon"}).Allowed)

	auto := NewApproval(nil, []string{"recon"}, true)
	d := auto.Check(ctx, Request{Stage: "recon"})
	assert.True(t, d.Allowed)
	assert.Equal(t, "auto-approved", d.Reason)
}

func TestEnvironment(t *testing.T) {
	ctx := context.Background()
	lab := NewEnvironment().WithHostname(func() (string, error) { return "lab-runner-1", nil })

	assert.True(t, lab.Check(ctx, Request{Target: "dev.example.com"}).Allowed)
	assert.False(t, lab.Check(ctx, Request{Target: "live.example.com"}).Allowed)

	prodHost := NewEnvironment().WithHostname(func() (string, error) { return "PROD-bastion", nil })
	d := prodHost.Check(ctx, Request{Target: "dev.example.com"})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "hostname")

	broken := NewEnvironment("x").WithHostname(func() (string, error) { return "", errors.New("no uts") })
	assert.False(t, broken.Check(ctx, Request{}).Allowed)
}

func TestPolicy(t *testing.T) {
	ctx := context.Background()
	noon := func() time.Time { return time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC) }

	p, err := NewPolicy("daytime-non-report", `hour >= 8 && hour < 20 && action != "report"`)
	require.NoError(t, err)
	p.WithClock(noon)

	assert.True(t, p.Check(ctx, Request{Action: "recon"}).Allowed)
	d := p.Check(ctx, Request{Action: "report"})
	assert.False(t, d.Allowed)
	assert.Equal(t, "policy:daytime-non-report", d.Gate)

	targets, err := NewPolicy("count", `size(targets) <= 2 && targets.all(t, t.endsWith(".example.com"))`)
	require.NoError(t, err)
	assert.True(t, targets.Check(ctx, Request{Targets: []string{"a.example.com", "b.example.com"}}).Allowed)
	assert.False(t, targets.Check(ctx, Request{Targets: []string{"a.example.com", "evil.test"}}).Allowed)

	ctxPolicy, err := NewPolicy("flag", `"dry_run" in context && context.dry_run == true`)
	require.NoError(t, err)
	assert.True(t, ctxPolicy.Check(ctx, Request{Context: map[string]any{"dry_run": true}}).Allowed)
	assert.False(t, ctxPolicy.Check(ctx, Request{}).Allowed)

	notBool, err := NewPolicy("str", `action`)
	require.NoError(t, err)
	assert.False(t, notBool.Check(ctx, Request{Action: "x"}).Allowed)

	_, err = NewPolicy("broken", `hour >=`)
	assert.Error(t, err)

	_, err = NewPolicy("unknown", `nope == 1`)
	assert.Error(t, err)
}

func TestAll_ShortCircuits(t *testing.T) {
	var called []string
	mk := func(name string, ok bool) Gate {
		return Func{GateName: name, Fn: func(context.Context, Request) (bool, string) {
			called = append(called, name)
			return ok, name + " says " + map[bool]string{true: "yes", false: "no"}[ok]
		}}
	}

	d := All(mk("a", true), mk("b", false), mk("c", true)).Check(context.Background(), Request{Action: "x"})
	assert.False(t, d.Allowed)
	assert.Equal(t, "b", d.Gate)
	assert.Equal(t, []string{"a", "b"}, called)

	called = nil
	d = All(mk("a", true), mk("c", true)).Check(context.Background(), Request{Action: "x"})
	assert.True(t, d.Allowed)
	assert.Equal(t, "all", d.Gate)
	assert.Equal(t, []string{"a", "c"}, called)

	decisions, ok := Evaluate(context.Background(), Request{})
	assert.True(t, ok)
	assert.Empty(t, decisions)
}

func TestRequest_AllTargets(t *testing.T) {
	r := Request{Target: "a", Targets: []string{"b", "a", " ", "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, r.AllTargets())
}

func TestParsePatterns(t *testing.T) {
	assert.Equal(t, []string{"prod", "payment", "core-db"}, ParsePatterns(" Prod, payment ,,core-db"))
	assert.Equal(t, DefaultProhibited, NewDefaultProhibited().Patterns())
}

func TestProhibited_EmptyListBlocksNothing(t *testing.T) {
	g := NewProhibited()
	assert.Empty(t, g.Patterns())
	d := g.Check(context.Background(), Request{Action: "recon", Target: "prod.example.com"})
	assert.True(t, d.Allowed)

	p := &countingPrompt{answer: "y"}
	d = NewSafety(nil, NewConfirm(p.fn)).Check(context.Background(), Request{Action: "recon", Target: "prod.example.com"})
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, p.calls)
}
