package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isAudio(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".flac" || ext == ".mp3"
}

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := NewWatcher(isAudio, 64)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func waitForEvent(t *testing.T, w *Watcher, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				t.Fatal("Event channel closed while waiting")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("Timed out waiting for event")
		}
	}
}

func TestWatcherDetectsAudioFiles(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t)
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Failed to watch directory: %v", err)
	}

	t.Run("CreateIsChangedAndNew", func(t *testing.T) {
		path := filepath.Join(dir, "song.flac")
		if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}

		ev := waitForEvent(t, w, func(ev Event) bool { return ev.Path == path })
		if ev.Op != Changed {
			t.Errorf("Expected Changed, got %v", ev.Op)
		}
		if !ev.IsNew {
			t.Error("Expected IsNew for a created file")
		}
	})

	t.Run("RemoveIsRemoved", func(t *testing.T) {
		path := filepath.Join(dir, "song.flac")
		if err := os.Remove(path); err != nil {
			t.Fatalf("Failed to remove file: %v", err)
		}

		ev := waitForEvent(t, w, func(ev Event) bool {
			return ev.Path == path && ev.Op == Removed
		})
		if ev.Op != Removed {
			t.Errorf("Expected Removed, got %v", ev.Op)
		}
	})

	t.Run("NonAudioIgnored", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
		marker := filepath.Join(dir, "marker.mp3")
		if err := os.WriteFile(marker, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create marker: %v", err)
		}

		// The marker event must arrive without a preceding notes.txt event
		ev := waitForEvent(t, w, func(ev Event) bool {
			return ev.Path == marker || strings.HasSuffix(ev.Path, "notes.txt")
		})
		if ev.Path != marker {
			t.Errorf("Expected non-audio file to be ignored, got event for %s", ev.Path)
		}
	})

	t.Run("HiddenAndTempIgnored", func(t *testing.T) {
		for _, name := range []string{".hidden.flac", "upload.flac.tmp"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
				t.Fatalf("Failed to create %s: %v", name, err)
			}
		}
		marker := filepath.Join(dir, "marker2.mp3")
		if err := os.WriteFile(marker, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create marker: %v", err)
		}

		ev := waitForEvent(t, w, func(ev Event) bool {
			return ev.Path == marker || strings.Contains(ev.Path, "hidden") || strings.HasSuffix(ev.Path, ".tmp")
		})
		if ev.Path != marker {
			t.Errorf("Expected hidden and temp files to be ignored, got event for %s", ev.Path)
		}
	})
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t)
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Failed to watch directory: %v", err)
	}

	sub := filepath.Join(dir, "New Album")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	// Give the watcher a moment to pick the new directory up
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(sub, "track.flac")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("Failed to create file in subdirectory: %v", err)
	}

	ev := waitForEvent(t, w, func(ev Event) bool { return ev.Path == path })
	if ev.Op != Changed || !ev.IsNew {
		t.Errorf("Expected new Changed event from subdirectory, got %+v", ev)
	}
}

func TestWatcherWatchIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t)

	if err := w.Watch(dir); err != nil {
		t.Fatalf("Failed to watch directory: %v", err)
	}
	if err := w.Watch(dir); err != nil {
		t.Errorf("Expected repeated Watch to be a no-op, got %v", err)
	}
	if err := w.Unwatch(dir); err != nil {
		t.Errorf("Failed to unwatch: %v", err)
	}
	if err := w.Unwatch(dir); err != nil {
		t.Errorf("Expected repeated Unwatch to be a no-op, got %v", err)
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := newTestWatcher(t)

	err := w.Watch(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("Expected error watching a missing directory")
	}
	var watchErr *WatchError
	if !errors.As(err, &watchErr) {
		t.Errorf("Expected WatchError, got %T: %v", err, err)
	}
}

func TestWatcherCloseClosesEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(isAudio, 64)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close watcher: %v", err)
	}

	select {
	case _, ok := <-w.Events():
		if ok {
			t.Error("Expected event channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("Timed out waiting for event channel to close")
	}
}
