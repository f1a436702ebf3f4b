package lock

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestLock(t *testing.T) *RWLock {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.lock")
	l, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestReadLockSameModeDoesNotBlock(t *testing.T) {
	l := newTestLock(t)

	g1, err := l.ReadLock(NonDestructive)
	if err != nil {
		t.Fatalf("ReadLock: %v", err)
	}
	defer g1.Unlock()

	g2, err := l.TryReadLock(NonDestructive)
	if err != nil {
		t.Fatalf("TryReadLock: %v", err)
	}
	if g2 == nil {
		t.Fatalf("expected second same-mode read lock to succeed")
	}
	defer g2.Unlock()
}

func TestWriteLockRecordsWriterState(t *testing.T) {
	l := newTestLock(t)

	g, err := l.WriteLock(Destructive)
	if err != nil {
		t.Fatalf("WriteLock: %v", err)
	}
	defer g.Unlock()

	if !l.HasWriter() {
		t.Errorf("expected HasWriter to be true")
	}
	mode, ok := l.WriterMode()
	if !ok || mode != Destructive {
		t.Errorf("WriterMode: got %v, %v", mode, ok)
	}
}

func TestSameProcessWriteLockReentersWithoutBlocking(t *testing.T) {
	l := newTestLock(t)

	g1, err := l.WriteLock(Destructive)
	if err != nil {
		t.Fatalf("WriteLock: %v", err)
	}
	defer g1.Unlock()

	g2, err := l.WriteLock(Destructive)
	if err != nil {
		t.Fatalf("second WriteLock (same process) should not block: %v", err)
	}
	defer g2.Unlock()
}

func TestInvalidModeRejected(t *testing.T) {
	l := newTestLock(t)
	if _, err := l.ReadLock(None); err != ErrInvalidMode {
		t.Errorf("ReadLock(None): got %v, want ErrInvalidMode", err)
	}
	if _, err := l.WriteLock(None); err != ErrInvalidMode {
		t.Errorf("WriteLock(None): got %v, want ErrInvalidMode", err)
	}
}

func TestUnlockReleasesWriterState(t *testing.T) {
	l := newTestLock(t)

	g, err := l.WriteLock(NonDestructive)
	if err != nil {
		t.Fatalf("WriteLock: %v", err)
	}
	if err := g.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	if l.HasWriter() {
		t.Errorf("expected HasWriter false after Unlock")
	}
}

func TestStateFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	st := state{writerMode: uint8(Destructive), writerPresent: 1, writerPID: 42, readerCounts: [3]uint64{0, 5, 7}}
	if err := writeState(path, st); err != nil {
		t.Fatalf("writeState: %v", err)
	}

	got, err := readState(path)
	if err != nil {
		t.Fatalf("readState: %v", err)
	}
	if got != st {
		t.Errorf("got %+v, want %+v", got, st)
	}
}

func TestBackoffDoubling(t *testing.T) {
	backoff := initialBackoff
	backoff = min(backoff*2, maxBackoff)
	if backoff != 2*time.Millisecond {
		t.Errorf("got %v, want 2ms", backoff)
	}
}
