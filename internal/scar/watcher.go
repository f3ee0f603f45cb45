// SPDX-License-Identifier: MIT

package scar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xlog "github.com/x0vs/ethos/internal/log"
)

// settleDelay is how long a packet file must stay quiet before import;
// repeated write events within the window reset the clock.
const settleDelay = 200 * time.Millisecond

// InboxWatcher imports packet JSON files dropped into the inbox directory.
// Each imported file becomes a scar and is removed afterwards.
type InboxWatcher struct {
	manager *Manager
	dir     string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewInboxWatcher prepares a watcher on dir, creating it if needed.
func NewInboxWatcher(manager *Manager, dir string) (*InboxWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scar: create inbox dir: %w", err)
	}
	return &InboxWatcher{
		manager: manager,
		dir:     dir,
		logger:  xlog.WithComponent("scar.inbox"),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start drains any packets already in the inbox, then watches for new ones
// until ctx is cancelled.
func (w *InboxWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scar: create watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("scar: watch inbox: %w", err)
	}

	w.drain(ctx)

	w.logger.Info().
		Str("event", "scar.inbox_started").
		Str(xlog.FieldPath, w.dir).
		Msg("watching inbox for packet files")

	go w.watchLoop(ctx)
	return nil
}

// drain imports every packet already sitting in the inbox.
func (w *InboxWatcher) drain(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn().Err(err).Msg("inbox scan failed")
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		w.importFile(ctx, filepath.Join(w.dir, e.Name()))
	}
}

func (w *InboxWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("event", "scar.inbox_stopped").Msg("inbox watcher stopped")
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			w.scheduleImport(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Str("event", "scar.inbox_error").Msg("inbox watcher error")
		}
	}
}

// scheduleImport debounces events per path: a burst of create/write events
// for one file keeps resetting a single timer, so the file is imported
// exactly once, after it has settled.
func (w *InboxWatcher) scheduleImport(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.importFile(ctx, path)
	})
}

// importFile turns one packet file into a scar and removes it. A file that
// vanished between the event and the import is not an error.
func (w *InboxWatcher) importFile(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn().Err(err).Str(xlog.FieldPath, path).Msg("packet read failed")
		}
		return
	}

	s, err := w.manager.ImportPacket(ctx, raw)
	if err != nil {
		w.logger.Warn().Err(err).Str(xlog.FieldPath, path).Msg("packet import failed")
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn().Err(err).Str(xlog.FieldPath, path).Msg("packet cleanup failed")
	}

	w.logger.Info().
		Str("event", "scar.packet_imported").
		Int64(xlog.FieldScarID, s.ID).
		Str(xlog.FieldSeverity, s.Severity).
		Msg("packet imported as scar")
}
