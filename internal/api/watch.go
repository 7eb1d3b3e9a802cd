package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/hyperengineering/smartshop/internal/types"
)

// snapshotWriteTimeout bounds a single snapshot send to a watcher.
const snapshotWriteTimeout = 5 * time.Second

// WatchCollection handles GET /api/v1/collections/{collection}/watch.
// It upgrades to a WebSocket and sends the whole collection on connect and
// after every change until the client leaves or its token expires. Client
// messages are ignored.
func (h *Handler) WatchCollection(w http.ResponseWriter, r *http.Request) {
	collection, ok := h.collectionParam(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			"component", "api",
			"action", "watch",
			"collection", collection,
			"error", err,
		)
		return
	}
	defer conn.CloseNow()

	// CloseRead keeps control frames flowing and cancels ctx when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	snapshots, err := h.docs.Watch(ctx, collection)
	if err != nil {
		slog.Error("watch failed",
			"component", "api",
			"action", "watch",
			"collection", collection,
			"error", err,
		)
		conn.Close(websocket.StatusInternalError, "watch failed")
		return
	}

	userID := UserIDFromContext(r.Context())
	slog.Info("watcher connected",
		"component", "api",
		"action", "watch",
		"collection", collection,
		"user_id", userID,
	)
	defer slog.Info("watcher disconnected",
		"component", "api",
		"action", "watch",
		"collection", collection,
		"user_id", userID,
	)

	// The token is checked only at upgrade, so the watch ends when it lapses.
	var expired <-chan time.Time
	if claims, ok := ClaimsFromContext(r.Context()); ok && claims.ExpiresAt != nil {
		timer := time.NewTimer(time.Until(claims.ExpiresAt.Time))
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-expired:
			conn.Close(websocket.StatusPolicyViolation, "token expired")
			return
		case docs, ok := <-snapshots:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeSnapshot(ctx, conn, collection, docs); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, collection string, docs []types.Document) error {
	data, err := json.Marshal(types.SnapshotResponse{Collection: collection, Documents: docs})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
