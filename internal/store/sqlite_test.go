package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/smartshop/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_NewSQLiteStore_Memory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	products, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 0 {
		t.Errorf("Expected no products, got %d", len(products))
	}
}

func TestGetByRemoteID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: One linked and one unlinked product
	remoteID := "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	linkedID, err := s.Insert(ctx, types.Product{RemoteID: &remoteID, Name: "Linked", Price: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, types.Product{Name: "Local", Price: 1}); err != nil {
		t.Fatal(err)
	}

	// When: Looking up by remote key
	got, err := s.GetByRemoteID(ctx, remoteID)

	// Then: The linked product is returned
	if err != nil {
		t.Fatalf("GetByRemoteID failed: %v", err)
	}
	if got.ID != linkedID || got.Name != "Linked" {
		t.Errorf("GetByRemoteID() = %+v, want id %d", got, linkedID)
	}

	// And: An unknown remote key is not found
	if _, err := s.GetByRemoteID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByRemoteID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInsert_AssignsLocalKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, types.Product{Name: "Widget", Price: 5, Quantity: 3})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	id2, err := s.Insert(ctx, types.Product{ID: 42, Name: "Gadget"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if id1 == 0 || id2 == 0 || id1 == id2 {
		t.Errorf("expected distinct non-zero keys, got %d and %d", id1, id2)
	}
	if id2 == 42 {
		t.Error("Insert should ignore the caller-supplied ID")
	}
}

func TestGetByID_RoundTripsNullableFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   types.Product
	}{
		{"unlinked without image", types.Product{Name: "Draft", Price: 1.25, Quantity: 0}},
		{"linked with image", types.Product{
			RemoteID: types.StringPtr("01JREMOTE00000000000000000"),
			Name:     "Widget",
			Price:    5,
			Quantity: 3,
			ImageURL: types.StringPtr("http://localhost/api/v1/images/a.jpg"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.Insert(ctx, tt.in)
			if err != nil {
				t.Fatalf("Insert failed: %v", err)
			}

			got, err := s.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}

			if got.ID != id {
				t.Errorf("ID = %d, want %d", got.ID, id)
			}
			if !types.Equivalent(*got, tt.in) {
				t.Errorf("GetByID() = %+v, want equivalent to %+v", *got, tt.in)
			}
		})
	}
}

func TestGetByID_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetByID(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_OverwritesFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.Insert(ctx, types.Product{Name: "Widget", Price: 5, Quantity: 3})

	updated := types.Product{ID: id, RemoteID: types.StringPtr("r1"), Name: "Widget v2", Price: 6, Quantity: 1}
	if err := s.Update(ctx, updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !types.Equivalent(*got, updated) {
		t.Errorf("after Update got %+v, want %+v", *got, updated)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(context.Background(), types.Product{ID: 7, Name: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestRemoteID_Unique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, types.Product{RemoteID: types.StringPtr("dup"), Name: "a"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	_, err := s.Insert(ctx, types.Product{RemoteID: types.StringPtr("dup"), Name: "b"})
	if !errors.Is(err, ErrDuplicateRemote) {
		t.Errorf("Insert() error = %v, want ErrDuplicateRemote", err)
	}

	// Unlinked records never collide.
	for i := 0; i < 2; i++ {
		if _, err := s.Insert(ctx, types.Product{Name: "draft"}); err != nil {
			t.Fatalf("Insert unlinked #%d failed: %v", i, err)
		}
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.Insert(ctx, types.Product{Name: "Widget"})

	if err := s.Delete(ctx, types.Product{ID: id}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.GetByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, types.Product{ID: id}); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestList_OrderedByLocalKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List on empty store = %v, want empty non-nil slice", empty)
	}

	for _, name := range []string{"c", "a", "b"} {
		if _, err := s.Insert(ctx, types.Product{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	products, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("len = %d, want 3", len(products))
	}
	for i := 1; i < len(products); i++ {
		if products[i-1].ID >= products[i].ID {
			t.Errorf("products not ordered by ID: %d before %d", products[i-1].ID, products[i].ID)
		}
	}
	if products[0].Name != "c" {
		t.Errorf("first product = %q, want %q", products[0].Name, "c")
	}
}

func receive(t *testing.T, ch <-chan []types.Product) []types.Product {
	t.Helper()
	select {
	case products, ok := <-ch:
		if !ok {
			t.Fatal("watch channel closed unexpectedly")
		}
		return products
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live query emission")
		return nil
	}
}

func TestWatch_EmitsInitialAndAfterMutations(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	existing, _ := s.Insert(ctx, types.Product{Name: "existing"})

	ch := s.Watch(ctx)

	// Then: Initial emission has current contents
	if got := receive(t, ch); len(got) != 1 || got[0].ID != existing {
		t.Fatalf("initial emission = %+v, want one product %d", got, existing)
	}

	// When: A product is inserted
	id, _ := s.Insert(ctx, types.Product{Name: "new"})
	if got := receive(t, ch); len(got) != 2 {
		t.Fatalf("after insert emission has %d products, want 2", len(got))
	}

	// When: It is updated
	_ = s.Update(ctx, types.Product{ID: id, Name: "renamed"})
	got := receive(t, ch)
	if len(got) != 2 || got[1].Name != "renamed" {
		t.Fatalf("after update emission = %+v", got)
	}

	// When: It is deleted
	_ = s.Delete(ctx, types.Product{ID: id})
	if got := receive(t, ch); len(got) != 1 {
		t.Fatalf("after delete emission has %d products, want 1", len(got))
	}
}

func TestWatch_SlowReaderSeesLatest(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Watch(ctx)

	// Given: A reader that does not consume while several mutations happen
	for i := 0; i < 5; i++ {
		if _, err := s.Insert(ctx, types.Product{Name: "p"}); err != nil {
			t.Fatal(err)
		}
	}

	// Then: The single pending emission reflects every mutation
	if got := receive(t, ch); len(got) != 5 {
		t.Errorf("pending emission has %d products, want 5", len(got))
	}
}

func TestWatch_ClosedOnCancel(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Watch(ctx)
	receive(t, ch)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// Drain a racing emission, then expect close.
			if _, ok := <-ch; ok {
				t.Error("expected channel to be closed after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestWatch_ClosedOnStoreClose(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatal(err)
	}

	ch := s.Watch(context.Background())
	receive(t, ch)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after store Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after store Close")
	}

	if after := s.Watch(context.Background()); after != nil {
		if _, ok := <-after; ok {
			t.Error("Watch on closed store should return a closed channel")
		}
	}
}
