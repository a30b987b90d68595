package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rubato/internal/database"
)

func newTestEngine(t *testing.T, root string) (*Engine, *database.Database) {
	t.Helper()
	cfg := testConfig(root, filepath.Join(t.TempDir(), "test.db"))

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewEngine(cfg, db), db
}

func waitForTrackCount(t *testing.T, db *database.Database, want int, timeout time.Duration) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		paths, err := db.GetAllTrackPaths()
		if err != nil {
			t.Fatalf("Failed to list track paths: %v", err)
		}
		if len(paths) == want {
			return paths
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d tracks, have %v", want, paths)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestScanLibrary(t *testing.T) {
	root := t.TempDir()
	albumDir := filepath.Join(root, "Artist", "Album")
	writeTrack(t, albumDir, "01 One.mp3")
	writeTrack(t, albumDir, "02 Two.mp3")
	writeTrack(t, albumDir, "cover.jpg") // not audio, ignored

	engine, db := newTestEngine(t, root)

	synced, err := engine.ScanLibrary()
	if err != nil {
		t.Fatalf("Failed to scan library: %v", err)
	}
	if synced != 2 {
		t.Errorf("Expected 2 files synced, got %d", synced)
	}

	paths, err := db.GetAllTrackPaths()
	if err != nil {
		t.Fatalf("Failed to list paths: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("Expected 2 tracks, got %v", paths)
	}

	t.Run("RescanPrunesOfflineDeletions", func(t *testing.T) {
		if err := os.Remove(filepath.Join(albumDir, "02 Two.mp3")); err != nil {
			t.Fatalf("Failed to remove file: %v", err)
		}

		if _, err := engine.ScanLibrary(); err != nil {
			t.Fatalf("Failed to rescan: %v", err)
		}
		paths, err := db.GetAllTrackPaths()
		if err != nil {
			t.Fatalf("Failed to list paths: %v", err)
		}
		if len(paths) != 1 {
			t.Errorf("Expected pruned catalog with 1 track, got %v", paths)
		}
	})

	t.Run("MissingRootIsEmptyScan", func(t *testing.T) {
		engine, _ := newTestEngine(t, filepath.Join(t.TempDir(), "missing"))
		synced, err := engine.ScanLibrary()
		if err != nil {
			t.Fatalf("Expected missing root to scan as empty, got %v", err)
		}
		if synced != 0 {
			t.Errorf("Expected 0 files synced, got %d", synced)
		}
	})
}

func TestEngineWatchPipeline(t *testing.T) {
	root := t.TempDir()
	albumDir := filepath.Join(root, "Artist", "Album")
	if err := os.MkdirAll(albumDir, 0755); err != nil {
		t.Fatalf("Failed to create album directory: %v", err)
	}

	engine, db := newTestEngine(t, root)
	notifications := engine.Subscribe()

	if err := engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	defer engine.Stop()

	if err := engine.Start(); err == nil {
		t.Error("Expected starting a running engine to fail")
	}

	// A new file flows watcher -> debouncer -> synchronizer into the catalog
	track := writeTrack(t, albumDir, "01 Track.mp3")
	paths := waitForTrackCount(t, db, 1, 5*time.Second)
	if paths[0] != track {
		t.Errorf("Expected %s in catalog, got %v", track, paths)
	}

	select {
	case n := <-notifications:
		if n.Kind != SyncStarted {
			t.Errorf("Expected sync_started notification first, got %s", n.Kind)
		}
	case <-time.After(time.Second):
		t.Error("Expected a notification for the sync")
	}

	// Removing the file empties the catalog again
	if err := os.Remove(track); err != nil {
		t.Fatalf("Failed to remove track: %v", err)
	}
	waitForTrackCount(t, db, 0, 5*time.Second)

	artists, err := db.GetArtists("")
	if err != nil {
		t.Fatalf("Failed to get artists: %v", err)
	}
	if len(artists) != 0 {
		t.Errorf("Expected artists pruned after removal, got %d", len(artists))
	}
}

func TestEngineStop(t *testing.T) {
	root := t.TempDir()
	engine, _ := newTestEngine(t, root)

	if err := engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	engine.Stop()
	// Stopping again must be safe
	engine.Stop()

	// The engine can be started again after a stop
	if err := engine.Start(); err != nil {
		t.Fatalf("Failed to restart engine: %v", err)
	}
	engine.Stop()
}

func TestEngineAddRemoveDirectory(t *testing.T) {
	root := t.TempDir()
	engine, db := newTestEngine(t, root)

	extra := filepath.Join(t.TempDir(), "extra")
	albumDir := filepath.Join(extra, "Artist", "Album")
	writeTrack(t, albumDir, "01 Track.mp3")

	if err := engine.AddDirectory(extra); err != nil {
		t.Fatalf("Failed to add directory: %v", err)
	}
	paths, err := db.GetAllTrackPaths()
	if err != nil {
		t.Fatalf("Failed to list paths: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("Expected added directory to be synced, got %v", paths)
	}

	if err := engine.RemoveDirectory(extra); err != nil {
		t.Fatalf("Failed to remove directory: %v", err)
	}
	paths, err = db.GetAllTrackPaths()
	if err != nil {
		t.Fatalf("Failed to list paths: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("Expected removed directory to be purged, got %v", paths)
	}
}
