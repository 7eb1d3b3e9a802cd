package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/smartshop/internal/types"
)

// Result counts the local mutations made by one reconciliation pass.
type Result struct {
	Deleted  int `json:"deleted"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Changed reports whether the pass mutated the local store.
func (r Result) Changed() bool {
	return r.Deleted+r.Inserted+r.Updated > 0
}

// Reconcile makes the local store match the remote snapshot docs:
// linked records missing from docs are deleted, then every document is
// inserted or, if its linked record differs, overwritten in place.
// Unlinked records are never touched. Local store errors abort the pass.
func (e *Engine) Reconcile(ctx context.Context, docs []types.Document) (Result, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var res Result

	local, err := e.local.List(ctx)
	if err != nil {
		return res, fmt.Errorf("read local snapshot: %w", err)
	}

	inRemote := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		inRemote[d.ID] = struct{}{}
	}

	byRemote := make(map[string]types.Product, len(local))
	for _, p := range local {
		if !p.Linked() {
			continue
		}
		if _, ok := inRemote[*p.RemoteID]; !ok {
			if err := e.local.Delete(ctx, p); err != nil {
				return res, fmt.Errorf("delete product %d: %w", p.ID, err)
			}
			res.Deleted++
			continue
		}
		byRemote[*p.RemoteID] = p
	}

	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}

		incoming := d.Product()
		existing, ok := byRemote[d.ID]
		if !ok {
			if _, err := e.local.Insert(ctx, incoming); err != nil {
				return res, fmt.Errorf("insert document %s: %w", d.ID, err)
			}
			res.Inserted++
			continue
		}

		if types.Equivalent(existing, incoming) {
			continue
		}
		incoming.ID = existing.ID
		if err := e.local.Update(ctx, incoming); err != nil {
			return res, fmt.Errorf("update product %d: %w", existing.ID, err)
		}
		res.Updated++
	}

	if res.Changed() {
		slog.Info("reconciled remote snapshot",
			"component", "sync",
			"action", "reconcile",
			"documents", len(docs),
			"deleted", res.Deleted,
			"inserted", res.Inserted,
			"updated", res.Updated,
		)
	}

	return res, nil
}
