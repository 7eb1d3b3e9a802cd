package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/hyperengineering/smartshop/internal/auth"
	"github.com/hyperengineering/smartshop/internal/broadcast"
	"github.com/hyperengineering/smartshop/internal/remote"
	"github.com/hyperengineering/smartshop/internal/store"
	"github.com/hyperengineering/smartshop/internal/types"
)

var errRemoteDown = errors.New("remote unavailable")

// fakeRemote is an in-memory remote collection.
type fakeRemote struct {
	mu        gosync.Mutex
	docs      map[string]types.DocumentFields
	nextID    int
	adds      int
	sets      int
	deletes   int
	failWrite bool
	failSub   bool
	subs      []*fakeSubscription

	// afterAdd runs after a successful Add, before it returns.
	afterAdd func(id string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: make(map[string]types.DocumentFields)}
}

func (f *fakeRemote) Add(ctx context.Context, fields types.DocumentFields) (string, error) {
	f.mu.Lock()
	if f.failWrite {
		f.mu.Unlock()
		return "", errRemoteDown
	}
	f.nextID++
	f.adds++
	id := fmt.Sprintf("r%d", f.nextID)
	f.docs[id] = fields
	hook := f.afterAdd
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return id, nil
}

func (f *fakeRemote) Set(ctx context.Context, id string, fields types.DocumentFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errRemoteDown
	}
	f.sets++
	f.docs[id] = fields
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errRemoteDown
	}
	f.deletes++
	delete(f.docs, id)
	return nil
}

func (f *fakeRemote) Subscribe(ctx context.Context) (remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSub {
		return nil, errRemoteDown
	}
	sub := &fakeSubscription{ch: make(chan []types.Document, 1)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeRemote) snapshot() []types.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := make([]types.Document, 0, len(f.docs))
	for id, fields := range f.docs {
		docs = append(docs, types.Document{ID: id, DocumentFields: fields})
	}
	return docs
}

func (f *fakeRemote) subscriptions() []*fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSubscription(nil), f.subs...)
}

type fakeSubscription struct {
	mu     gosync.Mutex
	ch     chan []types.Document
	closed bool
	err    error
}

func (s *fakeSubscription) Snapshots() <-chan []types.Document { return s.ch }

func (s *fakeSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// push delivers a snapshot, replacing any undelivered one.
func (s *fakeSubscription) push(docs []types.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	broadcast.Offer(s.ch, docs)
}

// fail ends the subscription with err, as a dropped connection would.
func (s *fakeSubscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.err = err
		s.closed = true
		close(s.ch)
	}
}

type testEngine struct {
	*Engine
	path   string
	local  *store.SQLiteStore
	remote *fakeRemote
	auth   *auth.State
}

// newTestEngine builds an engine over a real local store, a fake remote
// and a file-backed auth state that starts signed in.
func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	dir := t.TempDir()

	path := filepath.Join(dir, "local.db")
	local, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	state, err := auth.NewState(filepath.Join(dir, "session.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(state.Close)
	signIn(t, state, "token-1")

	r := newFakeRemote()
	return &testEngine{Engine: NewEngine(local, r, state), path: path, local: local, remote: r, auth: state}
}

func signIn(t *testing.T, state *auth.State, token string) {
	t.Helper()
	if err := state.SignIn(auth.Session{Token: token, ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
}

func listLocal(t *testing.T, e *testEngine) []types.Product {
	t.Helper()
	products, err := e.local.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	return products
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func doc(id, name string, price float64, qty int) types.Document {
	return types.Document{ID: id, DocumentFields: types.DocumentFields{Name: name, Price: price, Quantity: qty}}
}
