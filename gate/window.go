package gate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zero-day-ai/reconpipe/scope"
)

// TimeWindow allows actions only between start and end on selected weekdays.
// A window whose end is before its start wraps past midnight; equal start and
// end cover the whole day.
type TimeWindow struct {
	start int // minutes past midnight
	end   int
	days  map[time.Weekday]bool
	loc   *time.Location
	now   func() time.Time
}

// WindowOption configures a TimeWindow.
type WindowOption func(*TimeWindow)

// WithDays restricts the window to the given weekdays. No days means every
// day.
func WithDays(days ...time.Weekday) WindowOption {
	return func(w *TimeWindow) {
		if len(days) == 0 {
			w.days = nil
			return
		}
		w.days = make(map[time.Weekday]bool, len(days))
		for _, d := range days {
			w.days[d] = true
		}
	}
}

// WithLocation evaluates the window in loc instead of UTC.
func WithLocation(loc *time.Location) WindowOption {
	return func(w *TimeWindow) {
		if loc != nil {
			w.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) WindowOption {
	return func(w *TimeWindow) { w.now = now }
}

// NewTimeWindow parses start and end as HH:MM.
func NewTimeWindow(start, end string, opts ...WindowOption) (*TimeWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, err
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, err
	}
	w := &TimeWindow{start: s, end: e, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// BusinessHours is 09:00-17:00, Monday to Friday, UTC.
func BusinessHours(opts ...WindowOption) *TimeWindow {
	base := []WindowOption{WithDays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)}
	w, _ := NewTimeWindow("09:00", "17:00", append(base, opts...)...)
	return w
}

// ParseWeekdays maps names like "mon" or "Monday" to weekdays.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if len(key) < 3 {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		found := false
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.HasPrefix(strings.ToLower(d.String()), key[:3]) {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
	}
	return out, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Name implements Gate.
func (w *TimeWindow) Name() string { return "time_window" }

// Contains reports whether t falls inside the window.
func (w *TimeWindow) Contains(t time.Time) bool {
	t = t.In(w.loc)
	if w.days != nil && !w.days[t.Weekday()] {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	switch {
	case w.start == w.end:
		return true
	case w.start < w.end:
		return w.start <= m && m < w.end
	default:
		return m >= w.start || m < w.end
	}
}

// Check implements Gate.
func (w *TimeWindow) Check(_ context.Context, req Request) Decision {
	now := w.now().In(w.loc)
	span := formatClock(w.start) + "-" + formatClock(w.end)
	if w.days != nil && !w.days[now.Weekday()] {
		return deny(w.Name(), req, fmt.Sprintf("%s is outside allowed days", now.Weekday()))
	}
	if !w.Contains(now) {
		return deny(w.Name(), req, fmt.Sprintf("%s is outside allowed window %s", now.Format("15:04"), span))
	}
	return allow(w.Name(), req, "within allowed window "+span)
}

// Scope blocks any target that the scope checker rejects.
type Scope struct {
	checker *scope.Checker
}

// NewScope wraps checker.
func NewScope(checker *scope.Checker) *Scope {
	return &Scope{checker: checker}
}

// Name implements Gate.
func (s *Scope) Name() string { return "scope" }

// Check implements Gate.
func (s *Scope) Check(_ context.Context, req Request) Decision {
	targets := req.AllTargets()
	if len(targets) == 0 {
		return allow(s.Name(), req, "no targets to check")
	}
	for _, t := range targets {
		if d := s.checker.Check(t); !d.Allowed {
			return deny(s.Name(), req, fmt.Sprintf("%s: %s", t, d.Reason))
		}
	}
	return allow(s.Name(), req, "all targets in scope")
}

// DefaultEnvironmentMarkers identify environments the pipeline must never
// run against or from.
var DefaultEnvironmentMarkers = []string{"prod", "payment", "core-db", "production", "live"}

// Environment blocks when the local hostname or any target carries a
// production marker.
type Environment struct {
	markers  []string
	hostname func() (string, error)
}

// NewEnvironment uses DefaultEnvironmentMarkers when markers is empty.
func NewEnvironment(markers ...string) *Environment {
	e := &Environment{hostname: os.Hostname}
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			e.markers = append(e.markers, m)
		}
	}
	if len(e.markers) == 0 {
		e.markers = append(e.markers, DefaultEnvironmentMarkers...)
	}
	return e
}

// WithHostname replaces os.Hostname.
func (e *Environment) WithHostname(fn func() (string, error)) *Environment {
	e.hostname = fn
	return e
}

// Name implements Gate.
func (e *Environment) Name() string { return "environment" }

// Check implements Gate.
func (e *Environment) Check(_ context.Context, req Request) Decision {
	host, err := e.hostname()
	if err != nil {
		return deny(e.Name(), req, "cannot determine hostname: "+err.Error())
	}
	for _, m := range e.markers {
		if strings.Contains(strings.ToLower(host), m) {
			return deny(e.Name(), req, fmt.Sprintf("hostname %q looks like a %s environment", host, m))
		}
	}
	for _, t := range req.AllTargets() {
		lt := strings.ToLower(t)
		for _, m := range e.markers {
			if strings.Contains(lt, m) {
				return deny(e.Name(), req, fmt.Sprintf("target %q looks like a %s environment", t, m))
			}
		}
	}
	return allow(e.Name(), req, "environment check passed")
}
