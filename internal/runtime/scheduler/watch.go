package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/logging"
)

// WatchTrigger emits the path of every file created or written in Dir whose
// base name matches Pattern. An empty pattern matches everything.
type WatchTrigger struct {
	Dir     string
	Pattern string
	Logger  logging.ServiceLogger
}

func (w *WatchTrigger) Name() string {
	return fmt.Sprintf("WatchTrigger(%s)", filepath.Join(w.Dir, w.Pattern))
}

func (w *WatchTrigger) Engage(ctx context.Context, emit EventFunc) error {
	if w.Pattern != "" {
		if _, err := filepath.Match(w.Pattern, ""); err != nil {
			return dferrors.Fatal(fmt.Errorf("watch pattern %q: %w", w.Pattern, err))
		}
	}
	log := logging.OrDiscard(w.Logger).With(logging.LogFields{"dir": w.Dir})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	log.Debug("Watching directory", nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			log.Debug("File event", logging.LogFields{"file": event.Name, "op": event.Op.String()})
			if err := emit(event.Name); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return fmt.Errorf("watch %s: %w", w.Dir, err)
		}
	}
}

func (w *WatchTrigger) matches(path string) bool {
	if w.Pattern == "" {
		return true
	}
	ok, _ := filepath.Match(w.Pattern, filepath.Base(path))
	return ok
}
