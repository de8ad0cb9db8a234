package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed stage of a run.
type Phase struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	done     bool
}

// PhaseTimer stops a single phase. Stop is idempotent.
type PhaseTimer struct {
	timer *Timer
	name  string
}

// Stop records the phase duration and returns it.
func (pt *PhaseTimer) Stop() time.Duration {
	return pt.timer.StopPhase(pt.name)
}

// Timer records the duration of named phases in the order they start.
// Phases are always recorded; the enabled flag only gates PrintSummary.
type Timer struct {
	mu      sync.Mutex
	name    string
	now     func() time.Time
	started time.Time
	phases  []*Phase
	logger  Logger
	enabled bool
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithLogger sets the logger PrintSummary writes to.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		t.logger = logger
	}
}

// WithEnabled turns the printed summary on or off.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) {
		t.enabled = enabled
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TimerOption {
	return func(t *Timer) {
		t.now = now
	}
}

// NewTimer creates a timer and starts its total clock.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:    name,
		now:     time.Now,
		enabled: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.now()
	return t
}

// Start begins a phase. Restarting a phase name resets it.
func (t *Timer) Start(name string) *PhaseTimer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p := t.find(name); p != nil {
		p.Start, p.Duration, p.done = t.now(), 0, false
	} else {
		t.phases = append(t.phases, &Phase{Name: name, Start: t.now()})
	}
	return &PhaseTimer{timer: t, name: name}
}

// StopPhase ends a running phase. Unknown or stopped phases return their
// recorded duration unchanged.
func (t *Timer) StopPhase(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.find(name)
	if p == nil {
		return 0
	}
	if !p.done {
		p.Duration = t.now().Sub(p.Start)
		p.done = true
	}
	return p.Duration
}

// Duration returns the recorded duration of a phase.
func (t *Timer) Duration(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p := t.find(name); p != nil {
		return p.Duration
	}
	return 0
}

// Total returns the time since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.now().Sub(t.started)
}

// Phases returns a copy of the phases in start order.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Phase, len(t.phases))
	for i, p := range t.phases {
		out[i] = *p
	}
	return out
}

// Milliseconds returns the completed phases in milliseconds plus "total".
func (t *Timer) Milliseconds() map[string]int64 {
	out := map[string]int64{"total": t.Total().Milliseconds()}
	for _, p := range t.Phases() {
		if p.done {
			out[p.Name] = p.Duration.Milliseconds()
		}
	}
	return out
}

// Summary renders the phases as text.
func (t *Timer) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s timing ===\n", t.name)
	for i, p := range t.Phases() {
		fmt.Fprintf(&sb, "%d. %s: %v\n", i+1, p.Name, p.Duration)
	}
	fmt.Fprintf(&sb, "Total: %v\n", t.Total())
	return sb.String()
}

// PrintSummary logs the summary at info level when enabled.
func (t *Timer) PrintSummary() {
	if !t.enabled || t.logger == nil {
		return
	}
	for _, line := range strings.Split(strings.TrimSuffix(t.Summary(), "\n"), "\n") {
		t.logger.Info("%s", line)
	}
}

func (t *Timer) find(name string) *Phase {
	for _, p := range t.phases {
		if p.Name == name {
			return p
		}
	}
	return nil
}
