// Package scheduler keeps triggers alive and feeds their payloads into
// flows.
//
// Each (flow, trigger) pair gets a supervisor goroutine. The supervisor
// engages the trigger, and when it fails with anything but a stop or fatal
// error it logs the failure, waits the restart delay and engages again.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/drblury/dagflow/internal/runtime/config"
	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/logging"
)

// Target receives trigger payloads. *flow.Flow satisfies it.
type Target interface {
	Execute(value any) error
	Label() string
}

// Scheduler supervises triggers bound to flows.
type Scheduler struct {
	log     logging.ServiceLogger
	restart restartPolicy

	mu          sync.Mutex
	supervisors []*supervisor
	group       *errgroup.Group
	active      atomic.Int32
}

// New returns a scheduler with the default restart policy.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		log: logging.Discard(),
		restart: restartPolicy{
			enabled: true,
			delay:   config.DefaultRestartDelay,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFlow registers trigger as a source for target. Supervision starts with
// Execute.
func (s *Scheduler) AddFlow(target Target, trigger Trigger, opts ...AddOption) error {
	if target == nil {
		return dferrors.ErrFlowRequired
	}
	if trigger == nil {
		return dferrors.ErrTriggerRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return dferrors.ErrAlreadyInitialized
	}

	sup := &supervisor{
		target:  target,
		trigger: trigger,
		name:    TriggerName(trigger),
		restart: s.restart,
		state:   StateWaiting,
	}
	for _, opt := range opts {
		opt(sup)
	}
	sup.log = s.log.With(logging.LogFields{
		"flow":    target.Label(),
		"trigger": sup.name,
	})
	s.supervisors = append(s.supervisors, sup)
	return nil
}

// Execute starts every registered supervisor. A fatal trigger error cancels
// the context shared by all supervisors and is returned by Wait.
func (s *Scheduler) Execute(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return dferrors.ErrAlreadyInitialized
	}

	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	for _, sup := range s.supervisors {
		s.active.Add(1)
		g.Go(func() error {
			defer s.active.Add(-1)
			return sup.run(gctx)
		})
	}
	s.log.Info("Scheduler started", logging.LogFields{"supervisors": len(s.supervisors)})
	return nil
}

// Running reports whether any supervisor is still alive.
func (s *Scheduler) Running() bool {
	return s.active.Load() > 0
}

// Wait blocks until every supervisor ended and returns the first fatal
// error.
func (s *Scheduler) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return &dferrors.DependenciesNotMetError{Operation: "Wait"}
	}
	return g.Wait()
}

// ReadSensors snapshots every supervisor in registration order.
func (s *Scheduler) ReadSensors() []Reading {
	s.mu.Lock()
	sups := append([]*supervisor(nil), s.supervisors...)
	s.mu.Unlock()

	readings := make([]Reading, 0, len(sups))
	for _, sup := range sups {
		readings = append(readings, sup.reading())
	}
	return readings
}

// stopped marks an emit failure that means the flow will never accept data
// again.
func stopped(err error) error {
	if errors.Is(err, dferrors.ErrFlowClosed) {
		return fmt.Errorf("%w: %w", dferrors.ErrStopTrigger, err)
	}
	return err
}
