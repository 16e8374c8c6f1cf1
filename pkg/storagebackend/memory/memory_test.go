package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vitaliisemenov/wbrbcache/pkg/storagebackend/memory"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
)

func TestReadOfMissingKeyFailsFinal(t *testing.T) {
	b := memory.New[string, string]()
	if _, err := b.Read(context.Background(), "missing"); !errors.Is(err, wbrbcache.ErrCacheElementFailedLoading) {
		t.Fatalf("Read() error = %v, want %v", err, wbrbcache.ErrCacheElementFailedLoading)
	}
}

func TestWriteThenRead(t *testing.T) {
	b := memory.New[string, string]()
	if err := b.Write(context.Background(), "k1", "v1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := b.Read(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "v1" {
		t.Fatalf("Read() = %q, want %q", got, "v1")
	}
}

func TestSeedBypassesFailWrites(t *testing.T) {
	b := memory.New[string, string]()
	b.FailWrites = func(key string, value string) error { return errors.New("writes disabled") }

	b.Seed("k1", "v1")

	got, err := b.Read(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "v1" {
		t.Fatalf("Read() = %q, want %q", got, "v1")
	}
}

func TestFailReadsIsConsulted(t *testing.T) {
	b := memory.New[string, string]()
	b.Seed("k1", "v1")
	wantErr := errors.New("read disabled")
	b.FailReads = func(key string) error { return wantErr }

	if _, err := b.Read(context.Background(), "k1"); !errors.Is(err, wantErr) {
		t.Fatalf("Read() error = %v, want %v", err, wantErr)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := memory.New[string, string]()
	b.Seed("k1", "v1")

	snap := b.Snapshot()
	snap["k1"] = "mutated"

	got, err := b.Read(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "v1" {
		t.Fatalf("Snapshot mutation leaked into backend: Read() = %q, want %q", got, "v1")
	}
}
