package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/interfaces"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(arbor.NewLogger(), t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestStorePutGetDelete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	data := []byte("%PDF-1.4 test bytes")

	handle, hash, err := store.Put(ctx, "job_blob", "label.pdf", data)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if handle == "" || len(hash) != 64 {
		t.Fatalf("handle = %q, hash = %q", handle, hash)
	}

	got, err := store.Get(ctx, handle)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("roundtrip bytes differ")
	}

	if err := store.Delete(ctx, handle); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, handle); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("Get() after delete = %v, want not found", err)
	}

	// Deleting again is a no-op
	if err := store.Delete(ctx, handle); err != nil {
		t.Errorf("repeat Delete() error = %v", err)
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, handle := range []string{"../outside.pdf", "/etc/passwd", "a/../../b.pdf"} {
		if _, err := store.Get(ctx, handle); err == nil {
			t.Errorf("Get(%q) accepted a traversal handle", handle)
		}
	}
}

func TestStoreMissingHandle(t *testing.T) {
	store := setupStore(t)

	if _, err := store.Get(context.Background(), "2026-01-01/job_x/missing.pdf"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("Get() = %v, want not found", err)
	}
}
