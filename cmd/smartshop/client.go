package main

import (
	"fmt"

	"github.com/hyperengineering/smartshop/internal/auth"
	"github.com/hyperengineering/smartshop/internal/media"
	"github.com/hyperengineering/smartshop/internal/remote"
	"github.com/hyperengineering/smartshop/internal/store"
	"github.com/hyperengineering/smartshop/internal/sync"
)

// client is the composition root for commands that work against the local
// cache and the document service.
type client struct {
	state  *auth.State
	local  *store.SQLiteStore
	remote *remote.Client
	images *media.Client
	engine *sync.Engine
}

// openSession loads the session and the document-service clients without
// touching the local cache.
func openSession() (*client, error) {
	state, err := auth.NewState(cfg.Client.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &client{
		state:  state,
		remote: remote.NewClient(cfg.Remote.URL, cfg.Remote.Collection, state.Token),
		images: media.NewClient(cfg.Remote.URL, state.Token),
	}, nil
}

// openClient also opens the local cache and builds the sync engine over it.
func openClient() (*client, error) {
	c, err := openSession()
	if err != nil {
		return nil, err
	}

	local, err := store.NewSQLiteStore(cfg.Client.CachePath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open local cache: %w", err)
	}
	c.local = local
	c.engine = sync.NewEngine(local, c.remote, c.state)
	return c, nil
}

// Close releases the session and the local cache.
func (c *client) Close() {
	c.state.Close()
	if c.local != nil {
		c.local.Close()
	}
}
