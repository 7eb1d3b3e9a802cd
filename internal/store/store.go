package store

import (
	"context"

	"github.com/hyperengineering/smartshop/internal/types"
)

// Store defines the contract for the local product cache.
//
// Insert assigns the local key. Watch is the live query: the returned
// channel receives the full product list immediately and again after every
// mutation, and is closed when ctx ends or the store is closed.
type Store interface {
	Insert(ctx context.Context, p types.Product) (int64, error)
	Update(ctx context.Context, p types.Product) error
	Delete(ctx context.Context, p types.Product) error
	GetByID(ctx context.Context, id int64) (*types.Product, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*types.Product, error)
	List(ctx context.Context) ([]types.Product, error)
	Watch(ctx context.Context) <-chan []types.Product
	Close() error
}
