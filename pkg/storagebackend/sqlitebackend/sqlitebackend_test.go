package sqlitebackend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vitaliisemenov/wbrbcache/pkg/storagebackend/sqlitebackend"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
)

func newTestBackend(t *testing.T) *sqlitebackend.Backend[string] {
	t.Helper()
	b, err := sqlitebackend.New[string](context.Background(), sqlitebackend.Config{Path: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestReadOfMissingKeyFailsFinal(t *testing.T) {
	b := newTestBackend(t)
	if _, err := b.Read(context.Background(), "missing"); !errors.Is(err, wbrbcache.ErrCacheElementFailedLoading) {
		t.Fatalf("Read() error = %v, want %v", err, wbrbcache.ErrCacheElementFailedLoading)
	}
}

func TestWriteThenRead(t *testing.T) {
	b := newTestBackend(t)
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

func TestWriteOverwritesExistingKey(t *testing.T) {
	b := newTestBackend(t)
	if err := b.Write(context.Background(), "k1", "v1"); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := b.Write(context.Background(), "k1", "v2"); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	got, err := b.Read(context.Background(), "k1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "v2" {
		t.Fatalf("Read() = %q, want %q", got, "v2")
	}
}
