package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRecordsOwner(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, "http://chat.test")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	owner, held := Probe(dir)
	if !held {
		t.Fatal("Probe() should report the lock as held")
	}
	if owner.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", owner.PID, os.Getpid())
	}
	if owner.Server != "http://chat.test" {
		t.Errorf("Server = %q", owner.Server)
	}
	if owner.Since.IsZero() {
		t.Error("Since not recorded")
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir, "")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(dir, "")
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %T: %v", err, err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("HeldError.PID = %d, want %d", held.PID, os.Getpid())
	}
}

func TestReleaseRemovesFile(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, fileName)); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}
	if _, held := Probe(dir); held {
		t.Error("released lock reported as held")
	}
}

func TestProbeIgnoresStaleFile(t *testing.T) {
	dir := t.TempDir()
	stale := "pid=999999\ntime=2024-01-01T00:00:00Z\n"
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(stale), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, held := Probe(dir); held {
		t.Error("stale lock file reported as held")
	}

	l, err := Acquire(dir, "")
	if err != nil {
		t.Fatalf("Acquire() over stale file error = %v", err)
	}
	_ = l.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestParseOwner(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want Owner
	}{
		{"pid=42\ntime=2024-01-01T00:00:00Z\nserver=http://x\n", Owner{PID: 42, Since: since, Server: "http://x"}},
		{"time=x\npid=7", Owner{PID: 7}},
		{"", Owner{}},
		{"pid=abc", Owner{}},
	}
	for _, tt := range tests {
		got := parseOwner(tt.in)
		if got.PID != tt.want.PID || got.Server != tt.want.Server || !got.Since.Equal(tt.want.Since) {
			t.Errorf("parseOwner(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestHeldErrorMessage(t *testing.T) {
	err := &HeldError{Owner: Owner{PID: 12}, Path: "/p/LOCK"}
	if got := err.Error(); got != "profile lock held by PID 12 (/p/LOCK)" {
		t.Errorf("Error() = %q", got)
	}
}
