package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/logging"
)

// State is the supervision phase of one trigger.
type State string

const (
	StateWaiting    State = "waiting"
	StateEngaged    State = "engaged"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

// Reading is a snapshot of one supervisor.
type Reading struct {
	Trigger     string    `json:"trigger"`
	Flow        string    `json:"flow"`
	State       State     `json:"state"`
	Activations int64     `json:"activations"`
	Restarts    int64     `json:"restarts"`
	LastError   string    `json:"last_error,omitempty"`
	Since       time.Time `json:"since"`
}

type restartPolicy struct {
	enabled bool
	delay   time.Duration
}

type supervisor struct {
	target  Target
	trigger Trigger
	name    string
	restart restartPolicy
	log     logging.ServiceLogger

	mu          sync.Mutex
	state       State
	since       time.Time
	activations int64
	restarts    int64
	lastErr     error
}

func (s *supervisor) run(ctx context.Context) error {
	for {
		s.setState(StateEngaged, nil)
		err := s.engage(ctx)

		switch {
		case errors.Is(err, dferrors.ErrStopTrigger):
			s.setState(StateStopped, nil)
			s.log.Info("Trigger stopped", nil)
			return nil
		case dferrors.IsFatal(err):
			s.setState(StateFailed, err)
			s.log.Error("Trigger failed fatally", err, nil)
			return fmt.Errorf("trigger %s for flow %s: %w", s.name, s.target.Label(), err)
		case ctx.Err() != nil:
			s.setState(StateStopped, nil)
			return nil
		case err != nil:
			s.log.Error("Trigger failed", err, nil)
			if !s.restart.enabled {
				s.setState(StateFailed, err)
				return nil
			}
		case !s.restart.enabled:
			s.setState(StateStopped, nil)
			return nil
		}

		s.setState(StateRestarting, err)
		if sleep(ctx, s.restart.delay) != nil {
			s.setState(StateStopped, nil)
			return nil
		}
		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
	}
}

// engage runs the trigger once, turning a panic into an error.
func (s *supervisor) engage(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("trigger panicked: %v", p)
		}
	}()
	return s.trigger.Engage(ctx, s.emit)
}

func (s *supervisor) emit(payload any) error {
	if err := s.target.Execute(payload); err != nil {
		return stopped(err)
	}
	s.mu.Lock()
	s.activations++
	s.mu.Unlock()
	return nil
}

func (s *supervisor) setState(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != state {
		s.state, s.since = state, time.Now()
	}
	if err != nil {
		s.lastErr = err
	}
}

func (s *supervisor) reading() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Reading{
		Trigger:     s.name,
		Flow:        s.target.Label(),
		State:       s.state,
		Activations: s.activations,
		Restarts:    s.restarts,
		Since:       s.since,
	}
	if s.lastErr != nil {
		r.LastError = s.lastErr.Error()
	}
	return r
}
