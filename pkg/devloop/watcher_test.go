package devloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherCoalescesBurstIntoOneChange(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, "file.go")
		if err := os.WriteFile(path, []byte("package x\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-w.Changed():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a ProjectChanged event after the write burst")
	}

	select {
	case <-w.Changed():
		t.Fatal("expected the write burst to coalesce into a single event")
	case <-time.After(200 * time.Millisecond):
	}
}
