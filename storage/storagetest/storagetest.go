// Package storagetest holds behaviour checks shared by every storage.Storage
// implementation.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/storage"
)

// Run exercises s against the storage.Storage contract.
func Run(t *testing.T, s storage.Storage) {
	t.Helper()
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, s) })
	t.Run("GetNonExistent", func(t *testing.T) { testGetNonExistent(t, s) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, s) })
	t.Run("Namespaces", func(t *testing.T) { testNamespaces(t, s) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, s) })
	t.Run("DeleteNamespace", func(t *testing.T) { testDeleteNamespace(t, s) })
}

func testSetAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	if err := s.Set(ctx, "k1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	item, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil {
		t.Fatalf("expected item")
	}
	if string(item.Data) != `{"a":1}` {
		t.Fatalf("data = %q", item.Data)
	}
	if item.CreatedAt.IsZero() {
		t.Fatalf("expected CreatedAt to be set")
	}
	if item.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", item.ExpiresAt)
	}
}

func testGetNonExistent(t *testing.T, s storage.Storage) {
	item, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item, got %+v", item)
	}
}

func testTTL(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	if err := s.Set(ctx, "short", []byte("x"), storage.WithTTL(50*time.Millisecond)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	item, err := s.Get(ctx, "short")
	if err != nil || item == nil {
		t.Fatalf("expected live item, got %v, %v", item, err)
	}
	if item.ExpiresAt == nil {
		t.Fatalf("expected ExpiresAt")
	}

	time.Sleep(120 * time.Millisecond)

	item, err = s.Get(ctx, "short")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Fatalf("expected expired item to be gone")
	}
}

func testNamespaces(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	if err := s.Set(ctx, "shared", []byte("a"), storage.WithNamespace("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "shared", []byte("b"), storage.WithNamespace("beta")); err != nil {
		t.Fatal(err)
	}

	a, err := s.Get(ctx, "shared", storage.WithNamespace("alpha"))
	if err != nil || a == nil || string(a.Data) != "a" {
		t.Fatalf("alpha = %v, %v", a, err)
	}
	b, err := s.Get(ctx, "shared", storage.WithNamespace("beta"))
	if err != nil || b == nil || string(b.Data) != "b" {
		t.Fatalf("beta = %v, %v", b, err)
	}
	g, err := s.Get(ctx, "shared")
	if err != nil || g != nil {
		t.Fatalf("global should be empty, got %v, %v", g, err)
	}
}

func testDeleteKey(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	ns := storage.WithNamespace("del-key")
	_ = s.Set(ctx, "one", []byte("1"), ns)
	_ = s.Set(ctx, "two", []byte("2"), ns)

	if err := s.Delete(ctx, ns, storage.WithKey("one")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if item, _ := s.Get(ctx, "one", ns); item != nil {
		t.Fatalf("expected key one deleted")
	}
	if item, _ := s.Get(ctx, "two", ns); item == nil {
		t.Fatalf("expected key two to survive")
	}
	if err := s.Delete(ctx, ns, storage.WithKey("never-set")); err != nil {
		t.Fatalf("Delete of missing key: %v", err)
	}
}

func testDeleteNamespace(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	gone := storage.WithNamespace("gone")
	kept := storage.WithNamespace("kept")
	_ = s.Set(ctx, "a", []byte("1"), gone)
	_ = s.Set(ctx, "b", []byte("2"), gone)
	_ = s.Set(ctx, "a", []byte("3"), kept)

	if err := s.Delete(ctx, gone); err != nil {
		t.Fatalf("Delete namespace: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if item, _ := s.Get(ctx, k, gone); item != nil {
			t.Fatalf("expected %s deleted from namespace", k)
		}
	}
	if item, _ := s.Get(ctx, "a", kept); item == nil {
		t.Fatalf("expected other namespace untouched")
	}
}
