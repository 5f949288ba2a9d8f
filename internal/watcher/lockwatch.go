// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ControlFileWatcher watches a fixed set of daemon control files —
// daemon.lock, daemon.info, proxy-ca.pem, proxy-ca-key.pem — and invokes a
// callback, debounced, whenever one changes out of band. Adapted from
// teacher internal/watcher/binary.go's fsnotify wiring, trimmed from a
// per-service ref-counted watch set (BinaryWatcher.Watch/Unwatch) down to
// a fixed file list, since the daemon's control files are known up front
// and never added to or removed at runtime.
type ControlFileWatcher struct {
	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	onChange  func(path string)
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewControlFileWatcher watches paths for writes/creates, calling onChange
// (debounced per path by debounce) when one changes.
func NewControlFileWatcher(paths []string, debounce time.Duration, onChange func(path string)) (*ControlFileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}

	w := &ControlFileWatcher{
		fsw:       fsw,
		debouncer: NewDebouncer(debounce),
		onChange:  onChange,
		closeCh:   make(chan struct{}),
	}

	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("watcher: failed to watch control file")
		}
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *ControlFileWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.closeCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := event.Name
			w.debouncer.Debounce(path, func() {
				if w.onChange != nil {
					w.onChange(path)
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher: fsnotify error")
		}
	}
}

// Close stops the watcher.
func (w *ControlFileWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.closeCh:
		return nil
	default:
		close(w.closeCh)
	}
	w.debouncer.Stop()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
