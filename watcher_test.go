// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0
package bytehot

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestClassNameFromPath(t *testing.T) {
	tests := []struct {
		root, path, want string
	}{
		{"/watch", "/watch/com/example/Widget.class", "com.example.Widget"},
		{"/watch", "/watch/Widget.class", "Widget"},
	}
	for _, tt := range tests {
		if got := ClassNameFromPath(tt.root, tt.path); got != tt.want {
			t.Errorf("ClassNameFromPath(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
		}
	}
}

func TestFileEventKindString(t *testing.T) {
	tests := map[FileEventKind]string{
		FileCreated:               "created",
		FileModified:              "modified",
		FileDeleted:               "deleted",
		FileEventKind(0):          "unknown",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("FileEventKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

type collectedEvent struct {
	event ClassFileEvent
}

func newTestWatcher(t *testing.T, root string) (*Watcher, chan collectedEvent) {
	t.Helper()
	events := make(chan collectedEvent, 32)
	config := Config{
		WatchRoots:                []WatchRoot{{Path: root, Recursive: true}},
		SizeStabilizationAttempts: 5,
		SizeStabilizationDelay:    5 * time.Millisecond,
		StopDrainDeadline:         2 * time.Second,
	}
	w := NewWatcher(config, func(e ClassFileEvent) {
		events <- collectedEvent{event: e}
	}, nil)
	return w, events
}

func waitForEvent(t *testing.T, events chan collectedEvent, kind FileEventKind, timeout time.Duration) ClassFileEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ce := <-events:
			if ce.event.Kind == kind {
				return ce.event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func TestWatcherEmitsCreatedOnNewClassFile(t *testing.T) {
	root := t.TempDir()
	w, events := newTestWatcher(t, root)

	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(root, "Widget.class")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	event := waitForEvent(t, events, FileCreated, 3*time.Second)
	if event.ClassName != "Widget" {
		t.Fatalf("expected class name Widget, got %s", event.ClassName)
	}
	if event.Size != int64(len("payload")) {
		t.Fatalf("expected size %d, got %d", len("payload"), event.Size)
	}
}

func TestWatcherIgnoresNonClassFiles(t *testing.T) {
	root := t.TempDir()
	w, events := newTestWatcher(t, root)

	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	// Also write a real .class file so we have a positive signal that the
	// watch loop is alive and simply never emitted for notes.txt.
	if err := os.WriteFile(filepath.Join(root, "Widget.class"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	event := waitForEvent(t, events, FileCreated, 3*time.Second)
	if event.ClassName != "Widget" {
		t.Fatalf("expected only Widget.class to be observed, got %s", event.ClassName)
	}
}

func TestWatcherEmitsDeletedOnRemoval(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Widget.class")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	w, events := newTestWatcher(t, root)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove fixture: %v", err)
	}

	event := waitForEvent(t, events, FileDeleted, 3*time.Second)
	if event.ClassName != "Widget" {
		t.Fatalf("expected class name Widget, got %s", event.ClassName)
	}
}

func TestWatcherStartIsNotReentrant(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root)

	if err := w.Start(); err != nil {
		t.Fatalf("unexpected error on first Start: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err == nil {
		t.Fatal("expected the second Start to fail while already running")
	}
}

func TestWatcherStopIsNotReentrant(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root)

	if err := w.Start(); err != nil {
		t.Fatalf("unexpected error on Start: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("unexpected error on first Stop: %v", err)
	}
	if err := w.Stop(); err == nil {
		t.Fatal("expected the second Stop to fail, watcher is not running")
	}
}

func TestWatcherStartsWithDiagnosticSink(t *testing.T) {
	root := t.TempDir()
	var mu sync.Mutex
	var diagnostics []DiagnosticPayload

	config := Config{
		WatchRoots:                []WatchRoot{{Path: root, Recursive: true}},
		SizeStabilizationAttempts: 1,
		SizeStabilizationDelay:    time.Millisecond,
		StopDrainDeadline:         time.Second,
	}
	w := NewWatcher(config, func(ClassFileEvent) {}, func(d DiagnosticPayload) {
		mu.Lock()
		diagnostics = append(diagnostics, d)
		mu.Unlock()
	})

	if err := w.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	// No assertion on diagnostics content here: this exercises the
	// DiagnosticSink wiring path without forcing an actual unstable-size
	// race, which is inherently timing-dependent.
	_ = diagnostics
}
