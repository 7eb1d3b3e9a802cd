package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/smartshop/internal/store"
	"github.com/hyperengineering/smartshop/internal/types"
)

// Insert stores p locally, then adds it to the remote collection and links
// the local record to the new document. A remote failure leaves the record
// unlinked and is not returned. The stored product is returned.
//
// Another process sharing the cache may reconcile the new document before
// the link is written back. Its linked row then wins and the row inserted
// here is dropped.
func (e *Engine) Insert(ctx context.Context, p types.Product) (*types.Product, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	p.RemoteID = nil
	id, err := e.local.Insert(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id

	if !e.remoteWritable("insert", id) {
		return &p, nil
	}

	remoteID, err := e.remote.Add(ctx, p.Fields())
	if err != nil {
		slog.Warn("remote add failed",
			"component", "sync",
			"action", "insert",
			"product_id", id,
			"error", err,
		)
		return &p, nil
	}

	p.RemoteID = &remoteID
	if err := e.local.Update(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicateRemote) {
			return e.adoptLinked(ctx, p)
		}
		return nil, err
	}

	return &p, nil
}

// adoptLinked resolves a write-back that lost to a concurrent reconcile:
// the unlinked row p.ID is removed and the row already linked to
// p.RemoteID is brought up to p's fields and returned.
func (e *Engine) adoptLinked(ctx context.Context, p types.Product) (*types.Product, error) {
	linked, err := e.local.GetByRemoteID(ctx, *p.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("find linked product: %w", err)
	}

	if err := e.local.Delete(ctx, types.Product{ID: p.ID}); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	slog.Info("insert adopted concurrently linked product",
		"component", "sync",
		"action", "insert",
		"product_id", linked.ID,
		"dropped_id", p.ID,
		"remote_id", *p.RemoteID,
	)

	p.ID = linked.ID
	if types.Equivalent(*linked, p) {
		return linked, nil
	}
	if err := e.local.Update(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update overwrites the local record p.ID with p, then replaces the remote
// document if the record is linked. Remote failures are logged only.
func (e *Engine) Update(ctx context.Context, p types.Product) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.local.Update(ctx, p); err != nil {
		return err
	}

	if !p.Linked() || !e.remoteWritable("update", p.ID) {
		return nil
	}

	if err := e.remote.Set(ctx, *p.RemoteID, p.Fields()); err != nil {
		slog.Warn("remote set failed",
			"component", "sync",
			"action", "update",
			"product_id", p.ID,
			"remote_id", *p.RemoteID,
			"error", err,
		)
	}
	return nil
}

// Delete removes the local record p.ID, then the remote document if the
// record is linked. Remote failures are logged only.
func (e *Engine) Delete(ctx context.Context, p types.Product) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.local.Delete(ctx, p); err != nil {
		return err
	}

	if !p.Linked() || !e.remoteWritable("delete", p.ID) {
		return nil
	}

	if err := e.remote.Delete(ctx, *p.RemoteID); err != nil {
		slog.Warn("remote delete failed",
			"component", "sync",
			"action", "delete",
			"product_id", p.ID,
			"remote_id", *p.RemoteID,
			"error", err,
		)
	}
	return nil
}

// remoteWritable reports whether a remote write can be attempted. Signed
// out, the write would be rejected anyway, so it is skipped.
func (e *Engine) remoteWritable(action string, id int64) bool {
	if e.auth.SignedIn() {
		return true
	}
	slog.Debug("remote write skipped while signed out",
		"component", "sync",
		"action", action,
		"product_id", id,
	)
	return false
}
