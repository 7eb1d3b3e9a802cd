package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperengineering/smartshop/internal/broadcast"
	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/hyperengineering/smartshop/migrations"
)

// SQLiteStore is the SQLite-backed local product cache.
type SQLiteStore struct {
	db  *sql.DB
	hub *broadcast.Hub[[]types.Product]

	// notifyMu orders live-query emissions so a subscriber never sees an
	// older list after a newer one.
	notifyMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the product cache at dbPath, running migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := OpenDB(dbPath, migrations.LocalDir)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, hub: broadcast.New[[]types.Product]()}, nil
}

// Close closes every live query and the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.CloseAll()
	return s.db.Close()
}

// Insert stores a new product and returns its local key. The ID field of p
// is ignored.
func (s *SQLiteStore) Insert(ctx context.Context, p types.Product) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO products (remote_id, name, price, quantity, image_url)
		VALUES (?, ?, ?, ?, ?)
	`, nullString(p.RemoteID), p.Name, p.Price, p.Quantity, nullString(p.ImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateRemote
		}
		return 0, fmt.Errorf("insert product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	s.notify(ctx)
	return id, nil
}

// Update overwrites every field of the product identified by p.ID.
func (s *SQLiteStore) Update(ctx context.Context, p types.Product) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET remote_id = ?, name = ?, price = ?, quantity = ?, image_url = ?
		WHERE id = ?
	`, nullString(p.RemoteID), p.Name, p.Price, p.Quantity, nullString(p.ImageURL), p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRemote
		}
		return fmt.Errorf("update product: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return err
	}

	s.notify(ctx)
	return nil
}

// Delete removes the product identified by p.ID.
func (s *SQLiteStore) Delete(ctx context.Context, p types.Product) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, p.ID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if err := requireAffected(result); err != nil {
		return err
	}

	s.notify(ctx)
	return nil
}

// GetByID retrieves a product by local key.
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*types.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, remote_id, name, price, quantity, image_url
		FROM products
		WHERE id = ?
	`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}

	return p, nil
}

// List returns every product ordered by local key.
func (s *SQLiteStore) List(ctx context.Context) ([]types.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, remote_id, name, price, quantity, image_url
		FROM products
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []types.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return products, nil
}

// GetByRemoteID retrieves the product linked to a remote document.
func (s *SQLiteStore) GetByRemoteID(ctx context.Context, remoteID string) (*types.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, remote_id, name, price, quantity, image_url
		FROM products
		WHERE remote_id = ?
	`, remoteID)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}

	return p, nil
}

// Watch returns the live query over all products.
func (s *SQLiteStore) Watch(ctx context.Context) <-chan []types.Product {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		ch := make(chan []types.Product)
		close(ch)
		return ch
	}

	s.notifyMu.Lock()
	ch := s.hub.Subscribe()
	if products, err := s.List(ctx); err == nil {
		broadcast.Offer(ch, products)
	}
	s.notifyMu.Unlock()

	go func() {
		<-ctx.Done()
		s.hub.Unsubscribe(ch)
	}()

	return ch
}

// notify publishes the current product list to every live query.
// A failed read skips the emission; the next mutation catches subscribers up.
func (s *SQLiteStore) notify(ctx context.Context) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.hub.Len() == 0 {
		return
	}

	products, err := s.List(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	s.hub.Publish(products)
}

func scanProduct(scanner interface{ Scan(...any) error }) (*types.Product, error) {
	var p types.Product
	var remoteID, imageURL sql.NullString

	if err := scanner.Scan(&p.ID, &remoteID, &p.Name, &p.Price, &p.Quantity, &imageURL); err != nil {
		return nil, err
	}

	if remoteID.Valid {
		p.RemoteID = &remoteID.String
	}
	if imageURL.Valid {
		p.ImageURL = &imageURL.String
	}

	return &p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
