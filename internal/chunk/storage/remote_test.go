package storage

import (
	"context"
	"testing"

	"golang.org/x/time/rate"
)

func TestS3KeyPrefix(t *testing.T) {
	s := &S3{bucket: "b", prefix: "backups"}
	got := s.key(testHash(0x01))
	want := "backups/" + Key(testHash(0x01))
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestS3KeyNoPrefix(t *testing.T) {
	s := &S3{bucket: "b"}
	if got, want := s.key(testHash(0x02)), Key(testHash(0x02)); got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestGCSKeyPrefix(t *testing.T) {
	g := &GCS{bucket: "b", prefix: "chunks"}
	got := g.key(testHash(0x03))
	want := "chunks/" + Key(testHash(0x03))
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestAzureKeyPrefix(t *testing.T) {
	a := &Azure{container: "c", prefix: "chunks"}
	got := a.key(testHash(0x04))
	want := "chunks/" + Key(testHash(0x04))
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestNewLimiterDisabledByDefault(t *testing.T) {
	l := newLimiter(0)
	if l.Limit() != rate.Inf {
		t.Errorf("expected unlimited rate for non-positive input, got %v", l.Limit())
	}
}

func TestNewLimiterBounded(t *testing.T) {
	l := newLimiter(5)
	if l.Limit() != rate.Limit(5) {
		t.Errorf("Limit() = %v, want 5", l.Limit())
	}
	if l.Burst() != 5 {
		t.Errorf("Burst() = %v, want 5", l.Burst())
	}
}

func TestWaitLimiterNilIsNoop(t *testing.T) {
	if err := waitLimiter(context.Background(), nil); err != nil {
		t.Errorf("waitLimiter(nil) = %v, want nil", err)
	}
}
