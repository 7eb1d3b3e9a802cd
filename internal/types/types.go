package types

import "time"

// DefaultCollection is the remote collection products are synchronized with.
const DefaultCollection = "products"

// Product is an inventory record as held by the local store.
//
// ID is the local key assigned by the local store. RemoteID is the key
// assigned by the remote collection and is nil until the record has been
// written remotely.
type Product struct {
	ID       int64   `json:"id"`
	RemoteID *string `json:"remote_id,omitempty"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	ImageURL *string `json:"image_url,omitempty"`
}

// Linked reports whether the product has been written to the remote collection.
func (p Product) Linked() bool {
	return p.RemoteID != nil
}

// Fields returns the remote document body for the product.
func (p Product) Fields() DocumentFields {
	return DocumentFields{
		Name:     p.Name,
		Price:    p.Price,
		Quantity: p.Quantity,
		ImageURL: p.ImageURL,
	}
}

// DocumentFields is the body of a remote product document.
type DocumentFields struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	ImageURL *string `json:"image_url,omitempty"`
}

// Document is a product document as stored in the remote collection.
type Document struct {
	ID string `json:"id"`
	DocumentFields
}

// Product converts the document into an unsaved local product linked to it.
func (d Document) Product() Product {
	id := d.ID
	return Product{
		RemoteID: &id,
		Name:     d.Name,
		Price:    d.Price,
		Quantity: d.Quantity,
		ImageURL: d.ImageURL,
	}
}

// Equivalent reports whether a and b match on every field except the local key.
func Equivalent(a, b Product) bool {
	return equalStringPtr(a.RemoteID, b.RemoteID) &&
		a.Name == b.Name &&
		a.Price == b.Price &&
		a.Quantity == b.Quantity &&
		equalStringPtr(a.ImageURL, b.ImageURL)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StoreStats holds aggregate statistics for the document service.
type StoreStats struct {
	DocumentCount int64 `json:"document_count"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	DocumentCount int64  `json:"document_count"`
}

// AddDocumentResponse is returned when a document is added to a collection.
type AddDocumentResponse struct {
	ID string `json:"id"`
}

// SnapshotResponse carries the full contents of a collection.
type SnapshotResponse struct {
	Collection string     `json:"collection"`
	Documents  []Document `json:"documents"`
}

// Credentials is the request body for sign-up and login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordResetRequest is the request body for a password reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
}

// UserResponse is returned by a successful sign-up.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageResponse is returned by a successful image upload.
type ImageResponse struct {
	URL string `json:"url"`
}
