package scheduler

import (
	"time"

	"github.com/drblury/dagflow/internal/runtime/config"
	"github.com/drblury/dagflow/internal/runtime/logging"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(log logging.ServiceLogger) Option {
	return func(s *Scheduler) {
		s.log = logging.OrDiscard(log)
	}
}

// WithRestartPolicy sets whether failed triggers are re-engaged and how long
// to wait first. It applies to triggers added afterwards.
func WithRestartPolicy(restart bool, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.restart = restartPolicy{enabled: restart, delay: max(delay, 0)}
	}
}

// WithConfig applies the restart settings of cfg.
func WithConfig(cfg config.Config) Option {
	return WithRestartPolicy(cfg.RestartOnError, cfg.EffectiveRestartDelay())
}

// AddOption configures a single supervised trigger.
type AddOption func(*supervisor)

// WithName overrides the trigger name reported in readings and logs.
func WithName(name string) AddOption {
	return func(s *supervisor) {
		if name != "" {
			s.name = name
		}
	}
}

// WithTriggerRestart overrides the scheduler restart policy for one trigger.
func WithTriggerRestart(restart bool, delay time.Duration) AddOption {
	return func(s *supervisor) {
		s.restart = restartPolicy{enabled: restart, delay: max(delay, 0)}
	}
}
