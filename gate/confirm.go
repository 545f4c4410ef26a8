package gate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// PromptFunc shows prompt to an operator and returns one line of answer.
// Implementations must return once ctx ends; Confirm relies on that to
// enforce its timeout.
type PromptFunc func(ctx context.Context, prompt string) (string, error)

// ReaderPrompt writes prompts to w and reads answers line by line from r.
// End of input with no answer is returned as io.EOF. When ctx ends the
// prompt returns ctx.Err() without consuming a line, and a line that was
// already read before the next prompt was shown is dropped as the late
// answer to the abandoned one.
func ReaderPrompt(r io.Reader, w io.Writer) PromptFunc {
	lr := &lineReader{r: r}
	var (
		mu    sync.Mutex
		stale bool
	)
	return func(ctx context.Context, prompt string) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := io.WriteString(w, prompt); err != nil {
			return "", err
		}
		asked := time.Now()
		lines := lr.start()
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					return "", lr.err
				}
				if stale && l.at.Before(asked) {
					stale = false
					continue
				}
				stale = false
				return l.text, nil
			case <-ctx.Done():
				stale = true
				return "", ctx.Err()
			}
		}
	}
}

type line struct {
	text string
	at   time.Time
}

// lineReader reads r on one goroutine for the lifetime of the prompt. The
// goroutine exits at end of input; a reader that never ends keeps it parked.
type lineReader struct {
	r     io.Reader
	once  sync.Once
	lines chan line
	err   error
}

func (lr *lineReader) start() <-chan line {
	lr.once.Do(func() {
		lr.lines = make(chan line)
		go lr.run()
	})
	return lr.lines
}

func (lr *lineReader) run() {
	defer close(lr.lines)
	br := bufio.NewReader(lr.r)
	for {
		s, err := br.ReadString('\n')
		if s != "" && (err == nil || errors.Is(err, io.EOF)) {
			lr.lines <- line{text: strings.TrimRight(s, "\r\n"), at: time.Now()}
		}
		if err != nil {
			lr.err = err
			return
		}
	}
}

// Approves reports whether answer affirms: its first non-space character is
// y or Y.
func Approves(answer string) bool {
	a := strings.TrimSpace(answer)
	return a != "" && (a[0] == 'y' || a[0] == 'Y')
}

// Confirm asks an operator before every action. Anything other than an
// answer starting with y denies, including prompt errors and timeouts.
type Confirm struct {
	prompt  PromptFunc
	timeout time.Duration
}

// ConfirmOption configures a Confirm gate.
type ConfirmOption func(*Confirm)

// WithTimeout denies when no answer arrives within d. Zero waits forever.
func WithTimeout(d time.Duration) ConfirmOption {
	return func(c *Confirm) { c.timeout = d }
}

// NewConfirm returns a confirmation gate using prompt.
func NewConfirm(prompt PromptFunc, opts ...ConfirmOption) *Confirm {
	c := &Confirm{prompt: prompt}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Gate.
func (c *Confirm) Name() string { return "confirm" }

// Check implements Gate.
func (c *Confirm) Check(ctx context.Context, req Request) Decision {
	if c.prompt == nil {
		return deny(c.Name(), req, "no confirmation prompt configured")
	}
	target := req.Target
	if target == "" {
		target = strings.Join(req.AllTargets(), ", ")
	}
	text := fmt.Sprintf("Approve '%s' on %s? (y/n): ", req.Action, target)

	answer, err := c.ask(ctx, text)
	if err != nil {
		return deny(c.Name(), req, "confirmation failed: "+err.Error())
	}
	if Approves(answer) {
		return allow(c.Name(), req, "operator approved")
	}
	return deny(c.Name(), req, "operator declined")
}

func (c *Confirm) ask(ctx context.Context, text string) (string, error) {
	if c.timeout <= 0 {
		return c.prompt(ctx, text)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type reply struct {
		answer string
		err    error
	}
	ch := make(chan reply, 1)
	go func() {
		a, err := c.prompt(ctx, text)
		ch <- reply{a, err}
	}()
	select {
	case r := <-ch:
		return r.answer, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Safety is the two-phase gate: the denylist first, then confirmation. A
// denylisted target is never shown to the operator.
type Safety struct {
	prohibited *Prohibited
	confirm    *Confirm
}

// NewSafety combines p and c. A nil p uses DefaultProhibited; a nil c skips
// confirmation.
func NewSafety(p *Prohibited, c *Confirm) *Safety {
	if p == nil {
		p = NewDefaultProhibited()
	}
	return &Safety{prohibited: p, confirm: c}
}

// Name implements Gate.
func (s *Safety) Name() string { return "safety" }

// Check implements Gate.
func (s *Safety) Check(ctx context.Context, req Request) Decision {
	d := s.prohibited.Check(ctx, req)
	if d.Allowed && s.confirm != nil {
		d = s.confirm.Check(ctx, req)
	}
	d.Gate = s.Name()
	return d
}

// Approval asks for sign-off on selected stages only. Unlike Confirm it
// accepts exactly "y" or "yes".
type Approval struct {
	stages      map[string]struct{}
	autoApprove bool
	prompt      PromptFunc
}

// NewApproval requires approval for the named stages.
func NewApproval(prompt PromptFunc, stages []string, autoApprove bool) *Approval {
	a := &Approval{stages: make(map[string]struct{}, len(stages)), autoApprove: autoApprove, prompt: prompt}
	for _, s := range stages {
		a.stages[s] = struct{}{}
	}
	return a
}

// Requires reports whether stage needs approval.
func (a *Approval) Requires(stage string) bool {
	_, ok := a.stages[stage]
	return ok
}

// Name implements Gate.
func (a *Approval) Name() string { return "approval" }

// Check implements Gate.
func (a *Approval) Check(ctx context.Context, req Request) Decision {
	stage := req.Stage
	if stage == "" {
		stage = req.Action
	}
	if !a.Requires(stage) {
		return allow(a.Name(), req, "approval not required")
	}
	if a.autoApprove {
		return allow(a.Name(), req, "auto-approved")
	}
	if a.prompt == nil {
		return deny(a.Name(), req, "approval required but no prompt configured")
	}
	answer, err := a.prompt(ctx, fmt.Sprintf("Approve stage '%s'? (y/n): ", stage))
	if err != nil {
		return deny(a.Name(), req, "approval failed: "+err.Error())
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return allow(a.Name(), req, "approved by operator")
	default:
		return deny(a.Name(), req, "approval denied")
	}
}
