package lockfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTryAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.lock")

	l := New(p)
	ok, err := l.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected to acquire free lock")
	}

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestTryAcquireFailsWhenHeld(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.lock")

	a := New(p)
	ok, err := a.TryAcquire()
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}
	defer a.Release()

	b := New(p)
	ok2, err := b.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	if ok2 {
		t.Fatal("second acquire should have failed while first holds the lock")
	}
}

func TestStaleLockIsReclaimed(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "test.lock")

	// Simulate an abandoned lock: a PID that almost certainly doesn't
	// exist, with an mtime far in the past.
	if err := os.WriteFile(p, []byte("999999999"), 0o600); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(p, past, past); err != nil {
		t.Fatal(err)
	}

	l := NewWithTimeout(p, 30*time.Second)
	ok, err := l.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected stale lock to be reclaimed")
	}
	l.Release()
}

func TestGlobalLockAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	g := NewGlobal(dir)
	if err := g.Acquire(); err != nil {
		t.Fatal(err)
	}
	g2 := NewGlobal(dir)
	if err := g2.Acquire(); err == nil {
		t.Fatal("expected second global lock acquisition to fail")
	}
	if err := g.Release(); err != nil {
		t.Fatal(err)
	}
}
