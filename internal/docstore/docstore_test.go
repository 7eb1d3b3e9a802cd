package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/smartshop/internal/store"
	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/hyperengineering/smartshop/internal/validation"
	"github.com/hyperengineering/smartshop/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "server.db"), migrations.ServerDir)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	s := New(db)
	t.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return s
}

func receive(t *testing.T, ch <-chan []types.Document) []types.Document {
	t.Helper()
	select {
	case docs, ok := <-ch:
		if !ok {
			t.Fatal("watch channel closed unexpectedly")
		}
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestAdd_AssignsULID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, err := s.Add(ctx, "products", types.DocumentFields{Name: "Widget", Price: 5, Quantity: 3})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if verr := validation.ValidateULID("id", doc.ID); verr != nil {
		t.Errorf("ID %q is not a ULID: %v", doc.ID, verr.Message)
	}

	got, err := s.Get(ctx, "products", doc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Widget" || got.Price != 5 || got.Quantity != 3 || got.ImageURL != nil {
		t.Errorf("Get() = %+v", got)
	}
}

func TestSet_Upserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: A document set at an explicit ID
	if err := s.Set(ctx, "products", "custom-id", types.DocumentFields{Name: "A", Price: 1}); err != nil {
		t.Fatalf("Set (create) failed: %v", err)
	}

	// When: It is set again with new fields
	img := "http://img/a.jpg"
	if err := s.Set(ctx, "products", "custom-id", types.DocumentFields{Name: "B", Price: 2, Quantity: 9, ImageURL: &img}); err != nil {
		t.Fatalf("Set (replace) failed: %v", err)
	}

	// Then: The document is replaced, not duplicated
	docs, err := s.List(ctx, "products")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("len = %d, want 1", len(docs))
	}
	if docs[0].Name != "B" || docs[0].Quantity != 9 || docs[0].ImageURL == nil || *docs[0].ImageURL != img {
		t.Errorf("document = %+v", docs[0])
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc, _ := s.Add(ctx, "products", types.DocumentFields{Name: "A", Price: 1})

	if err := s.Delete(ctx, "products", doc.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "products", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "products", doc.ID); err != nil {
		t.Errorf("second Delete error = %v, want nil", err)
	}
}

func TestCollections_Isolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.Add(ctx, "products", types.DocumentFields{Name: "A", Price: 1})
	_, _ = s.Add(ctx, "archive", types.DocumentFields{Name: "B", Price: 1})

	docs, err := s.List(ctx, "products")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Name != "A" {
		t.Errorf("List(products) = %+v", docs)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DocumentCount != 2 {
		t.Errorf("DocumentCount = %d, want 2", stats.DocumentCount)
	}
}

func TestWatch_SnapshotAfterEachChange(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx, "products")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Then: Initial snapshot is empty
	if got := receive(t, ch); len(got) != 0 {
		t.Fatalf("initial snapshot = %+v, want empty", got)
	}

	doc, _ := s.Add(ctx, "products", types.DocumentFields{Name: "A", Price: 1})
	if got := receive(t, ch); len(got) != 1 || got[0].ID != doc.ID {
		t.Fatalf("after add = %+v", got)
	}

	_ = s.Set(ctx, "products", doc.ID, types.DocumentFields{Name: "A2", Price: 1})
	if got := receive(t, ch); len(got) != 1 || got[0].Name != "A2" {
		t.Fatalf("after set = %+v", got)
	}

	_ = s.Delete(ctx, "products", doc.ID)
	if got := receive(t, ch); len(got) != 0 {
		t.Fatalf("after delete = %+v", got)
	}
}

func TestWatch_IgnoresOtherCollections(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := s.Watch(ctx, "products")
	receive(t, ch)

	_, _ = s.Add(ctx, "archive", types.DocumentFields{Name: "B", Price: 1})

	select {
	case docs := <-ch:
		t.Errorf("unexpected snapshot for other collection: %+v", docs)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_ClosedOnCancelAndClose(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := s.Watch(ctx, "products")
	receive(t, ch)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}

	ch2, _ := s.Watch(context.Background(), "products")
	receive(t, ch2)
	s.Close()
	if _, ok := <-ch2; ok {
		t.Error("expected closed channel after Close")
	}
}
