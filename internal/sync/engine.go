// Package sync keeps the local product cache converged with the remote
// collection while a user is signed in, and writes local mutations through
// to the remote side.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"

	"github.com/hyperengineering/smartshop/internal/remote"
	"github.com/hyperengineering/smartshop/internal/types"
)

// LocalStore is the subset of the local cache the engine needs.
type LocalStore interface {
	Insert(ctx context.Context, p types.Product) (int64, error)
	Update(ctx context.Context, p types.Product) error
	Delete(ctx context.Context, p types.Product) error
	GetByID(ctx context.Context, id int64) (*types.Product, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*types.Product, error)
	List(ctx context.Context) ([]types.Product, error)
	Watch(ctx context.Context) <-chan []types.Product
}

// Remote is the remote collection the engine synchronizes against.
type Remote interface {
	Add(ctx context.Context, fields types.DocumentFields) (string, error)
	Set(ctx context.Context, id string, fields types.DocumentFields) error
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context) (remote.Subscription, error)
}

// AuthState reports sign-in state and its transitions.
type AuthState interface {
	Subscribe(ctx context.Context) <-chan bool
	SignedIn() bool
}

// Engine is the sync engine. All mutations of the local store, whether
// user-initiated or from reconciliation, are serialized through it.
type Engine struct {
	local  LocalStore
	remote Remote
	auth   AuthState

	// writeMu serializes every mutation. Write-through holds it across the
	// local write, the remote write and the remote-key write-back.
	writeMu gosync.Mutex

	subMu   gosync.Mutex
	sub     remote.Subscription
	subDone chan struct{}
}

// NewEngine creates an Engine over an explicitly constructed local store.
func NewEngine(local LocalStore, r Remote, auth AuthState) *Engine {
	return &Engine{local: local, remote: r, auth: auth}
}

// Run follows authentication transitions until ctx ends: each sign-in
// (re)subscribes to the remote collection and reconciles every snapshot,
// each sign-out cancels the subscription.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("sync engine started", "component", "sync")
	defer slog.Info("sync engine stopped", "component", "sync")

	transitions := e.auth.Subscribe(ctx)
	defer e.stopSubscription()

	for {
		select {
		case <-ctx.Done():
			return nil
		case signedIn, ok := <-transitions:
			if !ok {
				return nil
			}
			if signedIn {
				e.startSubscription(ctx)
			} else {
				e.stopSubscription()
			}
		}
	}
}

// Subscribed reports whether a remote subscription is currently running.
func (e *Engine) Subscribed() bool {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.sub == nil {
		return false
	}
	select {
	case <-e.subDone:
		return false
	default:
		return true
	}
}

// startSubscription replaces any running subscription with a new one.
// A failure to subscribe is logged; the next sign-in retries.
func (e *Engine) startSubscription(ctx context.Context) {
	e.stopSubscription()

	sub, err := e.remote.Subscribe(ctx)
	if err != nil {
		slog.Warn("remote subscribe failed",
			"component", "sync",
			"action", "subscribe",
			"error", err,
		)
		return
	}

	done := make(chan struct{})
	e.subMu.Lock()
	e.sub = sub
	e.subDone = done
	e.subMu.Unlock()

	slog.Info("remote subscription started", "component", "sync", "action", "subscribe")

	go e.consume(ctx, sub, done)
}

func (e *Engine) stopSubscription() {
	e.subMu.Lock()
	sub, done := e.sub, e.subDone
	e.sub, e.subDone = nil, nil
	e.subMu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	<-done

	slog.Info("remote subscription cancelled", "component", "sync", "action", "unsubscribe")
}

// consume reconciles snapshots in delivery order until the subscription ends.
func (e *Engine) consume(ctx context.Context, sub remote.Subscription, done chan struct{}) {
	defer close(done)

	for docs := range sub.Snapshots() {
		if _, err := e.Reconcile(ctx, docs); err != nil {
			slog.Error("reconcile failed",
				"component", "sync",
				"action", "reconcile",
				"error", err,
			)
		}
	}

	if err := sub.Err(); err != nil {
		slog.Warn("remote subscription ended",
			"component", "sync",
			"action", "subscription_error",
			"error", err,
		)
	}
}

// Products returns the live product list: the full list immediately and
// after every mutation. The channel closes when ctx ends.
func (e *Engine) Products(ctx context.Context) <-chan []types.Product {
	return e.local.Watch(ctx)
}

// List returns the current product list.
func (e *Engine) List(ctx context.Context) ([]types.Product, error) {
	return e.local.List(ctx)
}

// Get returns one product by local key.
func (e *Engine) Get(ctx context.Context, id int64) (*types.Product, error) {
	return e.local.GetByID(ctx, id)
}
