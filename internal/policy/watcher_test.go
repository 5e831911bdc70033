package policy

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nblocked: [old.com]"), 0o600); err != nil {
		t.Fatal(err)
	}

	pf, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(pf)

	reloaded := make(chan *PolicyFile, 1)
	w := NewWatcher(path, store, discardLogger(), func(pf *PolicyFile) {
		select {
		case reloaded <- pf:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher a moment to install before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("version: 1\nblocked: [new.com]"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if _, ok := store.IsBlocked("new.com"); !ok {
		t.Error("expected new policy in force")
	}
	if _, ok := store.IsBlocked("old.com"); ok {
		t.Error("expected old policy replaced")
	}
}

func TestWatcher_KeepsPriorPolicyOnBadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nblocked: [old.com]"), 0o600); err != nil {
		t.Fatal(err)
	}

	pf, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(pf)
	w := NewWatcher(path, store, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("version: [broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	// The rejected document must leave the prior policy in force. The
	// debounce window plus reload takes well under a second.
	time.Sleep(time.Second)
	if _, ok := store.IsBlocked("old.com"); !ok {
		t.Error("prior policy must stay in force after a rejected reload")
	}
}
