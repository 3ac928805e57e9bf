package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
)

// Unbounded lets a polling trigger run until its context ends.
const Unbounded = -1

// Nudger decides on every poll whether new data should enter the flow. It
// calls emit for each payload and reports whether it fired.
type Nudger interface {
	Nudge(ctx context.Context, emit EventFunc) (bool, error)
}

// NudgeFunc adapts a function to Nudger.
type NudgeFunc func(ctx context.Context, emit EventFunc) (bool, error)

func (f NudgeFunc) Nudge(ctx context.Context, emit EventFunc) (bool, error) {
	return f(ctx, emit)
}

// PollingTrigger nudges every Interval until MaxRuns payloads have been
// emitted, then stops with ErrStopTrigger. A negative MaxRuns never stops.
// The remaining run count survives restarts of the trigger.
type PollingTrigger struct {
	Interval time.Duration
	MaxRuns  int
	Nudger   Nudger

	mu        sync.Mutex
	started   bool
	remaining int
}

// NewPollingTrigger returns a trigger polling nudger every interval.
func NewPollingTrigger(interval time.Duration, maxRuns int, nudger Nudger) *PollingTrigger {
	return &PollingTrigger{Interval: interval, MaxRuns: maxRuns, Nudger: nudger}
}

// Engage polls until the run budget is spent, a nudge fails or ctx ends.
func (p *PollingTrigger) Engage(ctx context.Context, emit EventFunc) error {
	if p.Nudger == nil {
		return dferrors.Fatal(errors.New("polling trigger has no nudger"))
	}
	p.mu.Lock()
	if !p.started {
		p.started, p.remaining = true, p.MaxRuns
	}
	p.mu.Unlock()

	counted := func(payload any) error {
		if err := emit(payload); err != nil {
			return err
		}
		p.mu.Lock()
		if p.remaining > 0 {
			p.remaining--
		}
		p.mu.Unlock()
		return nil
	}

	for p.Remaining() != 0 {
		if _, err := p.Nudger.Nudge(ctx, counted); err != nil {
			return err
		}
		if p.Remaining() == 0 {
			break
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
	return dferrors.ErrStopTrigger
}

// Remaining reports how many emits are left; negative means unbounded.
func (p *PollingTrigger) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return p.MaxRuns
	}
	return p.remaining
}

// NewIntervalTrigger emits the current time every interval, maxRuns times.
func NewIntervalTrigger(interval time.Duration, maxRuns int) *PollingTrigger {
	return NewPollingTrigger(interval, maxRuns, NudgeFunc(func(_ context.Context, emit EventFunc) (bool, error) {
		if err := emit(time.Now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	}))
}
