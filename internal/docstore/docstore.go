// Package docstore implements the server side of the remote product
// collection: documents keyed by server-assigned ULIDs, grouped into named
// collections, with live snapshots for watchers.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperengineering/smartshop/internal/broadcast"
	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Store is the SQLite-backed document collection store.
type Store struct {
	db *sql.DB

	// writeMu orders mutations with their snapshot emissions so watchers
	// observe snapshots in commit order.
	writeMu sync.Mutex

	hubsMu sync.Mutex
	hubs   map[string]*broadcast.Hub[[]types.Document]
}

// New creates a Store over a database migrated with the server schema.
func New(db *sql.DB) *Store {
	return &Store{
		db:   db,
		hubs: make(map[string]*broadcast.Hub[[]types.Document]),
	}
}

// Close ends every watch. The database is owned by the caller.
func (s *Store) Close() {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	for name, h := range s.hubs {
		h.CloseAll()
		delete(s.hubs, name)
	}
}

// Add stores a new document and returns it with its assigned ID.
func (s *Store) Add(ctx context.Context, collection string, fields types.DocumentFields) (*types.Document, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc := types.Document{ID: ulid.Make().String(), DocumentFields: fields}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, name, price, quantity, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, collection, doc.ID, fields.Name, fields.Price, fields.Quantity, nullString(fields.ImageURL), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	s.publish(ctx, collection)
	return &doc, nil
}

// Set creates or replaces the document with the given ID.
func (s *Store) Set(ctx context.Context, collection, id string, fields types.DocumentFields) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, name, price, quantity, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			quantity = excluded.quantity,
			image_url = excluded.image_url,
			updated_at = excluded.updated_at
	`, collection, id, fields.Name, fields.Price, fields.Quantity, nullString(fields.ImageURL), now, now)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	s.publish(ctx, collection)
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.publish(ctx, collection)
	}
	return nil
}

// Get retrieves one document.
func (s *Store) Get(ctx context.Context, collection, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, quantity, image_url
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}
	return doc, nil
}

// List returns every document of a collection ordered by ID.
func (s *Store) List(ctx context.Context, collection string) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, quantity, image_url
		FROM documents
		WHERE collection = ?
		ORDER BY id ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []types.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return docs, nil
}

// Watch returns a channel that receives the full collection immediately and
// after every change to it. The channel is closed when ctx ends or the store
// is closed.
func (s *Store) Watch(ctx context.Context, collection string) (<-chan []types.Document, error) {
	s.writeMu.Lock()
	h := s.hub(collection)
	ch := h.Subscribe()
	docs, err := s.List(ctx, collection)
	if err != nil {
		s.writeMu.Unlock()
		h.Unsubscribe(ch)
		return nil, err
	}
	broadcast.Offer(ch, docs)
	s.writeMu.Unlock()

	go func() {
		<-ctx.Done()
		h.Unsubscribe(ch)
	}()

	return ch, nil
}

// GetStats returns aggregate statistics across all collections.
func (s *Store) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return nil, err
	}
	return &types.StoreStats{DocumentCount: count}, nil
}

func (s *Store) hub(collection string) *broadcast.Hub[[]types.Document] {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	h, ok := s.hubs[collection]
	if !ok {
		h = broadcast.New[[]types.Document]()
		s.hubs[collection] = h
	}
	return h
}

// publish sends the current collection to its watchers. Callers hold writeMu.
func (s *Store) publish(ctx context.Context, collection string) {
	s.hubsMu.Lock()
	h, ok := s.hubs[collection]
	s.hubsMu.Unlock()
	if !ok || h.Len() == 0 {
		return
	}

	docs, err := s.List(context.WithoutCancel(ctx), collection)
	if err != nil {
		return
	}
	h.Publish(docs)
}

func scanDocument(scanner interface{ Scan(...any) error }) (*types.Document, error) {
	var doc types.Document
	var imageURL sql.NullString

	if err := scanner.Scan(&doc.ID, &doc.Name, &doc.Price, &doc.Quantity, &imageURL); err != nil {
		return nil, err
	}
	if imageURL.Valid {
		doc.ImageURL = &imageURL.String
	}
	return &doc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
