package scheduler

import (
	"context"
	"reflect"
	"time"
)

// EventFunc pushes one payload into the flow a trigger is bound to.
type EventFunc func(payload any) error

// Trigger feeds a flow. Engage blocks while the trigger listens or polls and
// calls emit for every payload that should enter the flow. Returning an error
// wrapping errors.ErrStopTrigger ends supervision without counting as a
// failure.
type Trigger interface {
	Engage(ctx context.Context, emit EventFunc) error
}

// TriggerFunc adapts a plain function to Trigger.
type TriggerFunc func(ctx context.Context, emit EventFunc) error

func (f TriggerFunc) Engage(ctx context.Context, emit EventFunc) error { return f(ctx, emit) }

// Named lets a trigger choose the name reported in sensor readings.
type Named interface {
	Name() string
}

// TriggerName returns the reported name of t: Name() when implemented,
// otherwise the dereferenced type name.
func TriggerName(t Trigger) string {
	if n, ok := t.(Named); ok {
		return n.Name()
	}
	typ := reflect.TypeOf(t)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil {
		return "<nil>"
	}
	return typ.Name()
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
