package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/hyperengineering/smartshop/internal/broadcast"
	"github.com/hyperengineering/smartshop/internal/types"
)

// maxSnapshotSize bounds a single snapshot message.
const maxSnapshotSize = 32 << 20

// dialTimeout bounds the WebSocket handshake.
const dialTimeout = 15 * time.Second

// Subscription is a live query over the remote collection.
type Subscription interface {
	// Snapshots delivers the full collection on every change. A reader that
	// falls behind only sees the newest snapshot. The channel is closed when
	// the subscription ends.
	Snapshots() <-chan []types.Document
	// Err reports why the subscription ended. It is nil while running and
	// after Close.
	Err() error
	// Close ends the subscription and waits for its reader to stop.
	Close() error
}

// Subscribe opens a live query over the collection. The first snapshot is
// the current contents. The subscription also ends when ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context) (Subscription, error) {
	u, err := c.watchURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if token := c.token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	defer cancelDial()

	conn, resp, err := websocket.Dial(dialCtx, u, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("subscribe: %w", decodeAPIError(resp))
		}
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	conn.SetReadLimit(maxSnapshotSize)

	subCtx, cancel := context.WithCancel(ctx)
	s := &watchSubscription{
		conn:      conn,
		snapshots: make(chan []types.Document, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.readLoop(subCtx)

	return s, nil
}

func (c *Client) watchURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/collections/" + url.PathEscape(c.collection) + "/watch")
	if err != nil {
		return "", fmt.Errorf("parse watch url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

type watchSubscription struct {
	conn      *websocket.Conn
	snapshots chan []types.Document
	cancel    context.CancelFunc
	done      chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *watchSubscription) Snapshots() <-chan []types.Document {
	return s.snapshots
}

func (s *watchSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *watchSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.cancel()
	})
	<-s.done
	return nil
}

func (s *watchSubscription) readLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.snapshots)
	defer s.conn.CloseNow()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.finish(ctx, err)
			return
		}

		var snap types.SnapshotResponse
		if err := json.Unmarshal(data, &snap); err != nil {
			s.finish(ctx, fmt.Errorf("decode snapshot: %w", err))
			s.conn.Close(websocket.StatusUnsupportedData, "malformed snapshot")
			return
		}
		if snap.Documents == nil {
			snap.Documents = []types.Document{}
		}

		broadcast.Offer(s.snapshots, snap.Documents)
	}
}

// finish records err unless the subscription was closed or its context ended.
func (s *watchSubscription) finish(ctx context.Context, err error) {
	if s.closing.Load() || ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
