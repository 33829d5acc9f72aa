// SPDX-License-Identifier: MIT

package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/store"
)

// Watcher registers files dropped into watch directories. Writes are
// debounced so a file still being copied is only registered once it has
// settled.
type Watcher struct {
	Scanner  *Scanner
	Debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

const defaultDebounce = 2 * time.Second

// Run watches dirs until the context is canceled. The directories are also
// scanned once up front so files dropped while the watcher was down are not
// lost.
func (w *Watcher) Run(ctx context.Context, dirs ...string) error {
	logger := log.WithComponentFromContext(ctx, "discovery")

	if _, err := w.Scanner.Scan(ctx, dirs...); err != nil {
		logger.Warn().Err(err).Msg("initial scan failed")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	logger.Info().Strs("dirs", dirs).Msg("watching for new media")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, recognized := w.Scanner.mediaType(event.Name); !recognized {
				continue
			}
			w.schedule(ctx, event.Name)
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(werr).Msg("watcher error")
		}
	}
}

// schedule (re)arms the debounce timer for one path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timers == nil {
		w.timers = make(map[string]*time.Timer)
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(debounce)
		return
	}
	w.timers[path] = time.AfterFunc(debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := w.Scanner.Add(ctx, path); err != nil && !errors.Is(err, store.ErrDuplicatePath) {
			logger := log.WithComponentFromContext(ctx, "discovery")
			logger.Warn().
				Err(err).Str(log.FieldPath, path).Msg("failed to register dropped file")
		}
	})
}
