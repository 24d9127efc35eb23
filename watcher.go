// watcher.go: Class-File Watcher (C1).
//
// Grounded on argus.go's Watcher (fileStat cache, Start/Stop idempotency
// via atomic.Bool CompareAndSwap, BoreasLite wiring) with the notification
// primitive swapped from argus's deliberate polling-only design to
// fsnotify, since spec §4.1/§5 call for an OS notification primitive and
// fsnotify is the pack's canonical choice (seen directly imported in
// vimeo-dials and giantswarm-muster).
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/fsnotify/fsnotify"
)

// Emitter receives normalized Class-File Events from the watcher.
type Emitter func(ClassFileEvent)

// DiagnosticSink receives non-fatal diagnostic conditions (spec §7).
type DiagnosticSink func(DiagnosticPayload)

// Watcher observes one or more directories for compiled-class artifact
// changes and emits normalized ClassFileEvent values (spec §4.1).
type Watcher struct {
	config     Config
	emit       Emitter
	diagnostic DiagnosticSink

	fsw  *fsnotify.Watcher
	ring *EventRing

	running   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewWatcher constructs a Watcher. emit is called for every
// Created/Modified/Deleted event; diagnostic is called for every non-fatal
// condition encountered along the way (spec §7).
func NewWatcher(config Config, emit Emitter, diagnostic DiagnosticSink) *Watcher {
	cfg := config.WithDefaults()

	w := &Watcher{
		config:     cfg,
		emit:       emit,
		diagnostic: diagnostic,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}

	w.ring = NewEventRing(128, OptimizationAuto, w.dispatch)
	return w
}

// dispatch is the EventRing consumer: it forwards each drained event to emit.
func (w *Watcher) dispatch(event *ClassFileEvent) {
	w.emit(*event)
}

// Start begins watching the configured roots in the background and
// returns immediately; it is the long-running `watch(roots, recursive,
// emitter)` operation of spec §4.1, split into construction (NewWatcher)
// plus Start so the roots can be validated before anything runs.
func (w *Watcher) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeWatcherBusy, "watcher is already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.running.Store(false)
		return errors.Wrap(err, ErrCodePathUnreadable, "failed to create filesystem watcher")
	}
	w.fsw = fsw

	for _, root := range w.config.WatchRoots {
		if err := w.addRoot(root); err != nil {
			_ = fsw.Close()
			w.running.Store(false)
			return err
		}
	}

	go w.ring.RunProcessor()
	go w.watchLoop()
	return nil
}

// addRoot registers root (and, if recursive, every subdirectory) with the
// underlying fsnotify watcher.
func (w *Watcher) addRoot(root WatchRoot) error {
	abs, err := filepath.Abs(root.Path)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidWatchConfig, "invalid watch root").WithContext("path", root.Path)
	}

	if !root.Recursive {
		if err := w.fsw.Add(abs); err != nil {
			return errors.Wrap(err, ErrCodePathUnreadable, "failed to watch root").WithContext("path", abs)
		}
		return nil
	}

	return filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.reportDiagnostic("", ErrCodePathUnreadable, err.Error())
			return nil // per §4.1: per-event failures log and continue
		}
		if d.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				w.reportDiagnostic("", ErrCodePathUnreadable, addErr.Error())
			}
		}
		return nil
	})
}

// Stop is the idempotent `stop()` operation. It is cooperative: in-flight
// events drain (bounded by config.StopDrainDeadline) before the watch
// loop and event ring are torn down (spec §5).
func (w *Watcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeWatcherStopped, "watcher is not running")
	}

	close(w.stopCh)

	select {
	case <-w.stoppedCh:
	case <-time.After(w.config.StopDrainDeadline):
	}

	w.ring.Stop()
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	return nil
}

// IsRunning reports whether the watch loop is active.
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

func (w *Watcher) watchLoop() {
	defer close(w.stoppedCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleNotification(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportDiagnostic("", ErrCodeNotificationLost, err.Error())
		}
	}
}

func (w *Watcher) handleNotification(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, classFileSuffix) {
		return // filtering: non-.class artifacts never emitted (§4.1)
	}

	root := w.rootFor(ev.Name)
	className := ClassNameFromPath(root, ev.Name)

	switch {
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		event := ClassFileEvent{Kind: FileDeleted, Path: ev.Name, ClassName: className, Captured: timecache.CachedTime()}
		w.ring.WriteBlocking(&event)

	case ev.Op&fsnotify.Create != 0, ev.Op&fsnotify.Write != 0:
		kind := FileModified
		if ev.Op&fsnotify.Create != 0 {
			kind = FileCreated
		}
		size, ok := w.stabilizedSize(ev.Name)
		if !ok {
			w.reportDiagnostic(className, ErrCodeSizeUnstable, "artifact size did not stabilize, dropping event")
			return
		}
		event := ClassFileEvent{Kind: kind, Path: ev.Name, ClassName: className, Size: size, Captured: timecache.CachedTime()}
		w.ring.WriteBlocking(&event)
	}
}

// stabilizedSize implements spec §4.1's bounded retry for the
// create-before-flush race: read size, and if zero, sleep and retry up to
// SizeStabilizationAttempts times before giving up.
func (w *Watcher) stabilizedSize(path string) (int64, bool) {
	for attempt := 0; attempt < w.config.SizeStabilizationAttempts; attempt++ {
		info, err := os.Stat(path)
		if err == nil && info.Size() > 0 {
			return info.Size(), true
		}
		time.Sleep(w.config.SizeStabilizationDelay)
	}
	return 0, false
}

func (w *Watcher) rootFor(path string) string {
	for _, root := range w.config.WatchRoots {
		abs, err := filepath.Abs(root.Path)
		if err != nil {
			continue
		}
		if strings.HasPrefix(path, abs) {
			return abs
		}
	}
	return filepath.Dir(path)
}

func (w *Watcher) reportDiagnostic(className, code, message string) {
	if w.diagnostic == nil {
		return
	}
	w.diagnostic(DiagnosticPayload{ClassName: className, Code: code, Message: message})
}
