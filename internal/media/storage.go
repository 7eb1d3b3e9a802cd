// Package media stores product images on the document service and uploads
// them from the client.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxImageSize is the largest accepted upload, in bytes.
const MaxImageSize = 10 << 20

var (
	ErrNotFound     = errors.New("image not found")
	ErrInvalidName  = errors.New("invalid image name")
	ErrTooLarge     = errors.New("image exceeds maximum size")
	ErrUnsupported  = errors.New("unsupported image type")
	allowedExtTypes = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
)

// Store keeps uploaded images. Names are generated by Save and are the
// only names the other methods accept.
type Store interface {
	Save(ctx context.Context, r io.Reader, originalName string) (string, error)
	Open(ctx context.Context, name string) (io.ReadSeekCloser, time.Time, error)
	Remove(ctx context.Context, name string) error
}

// Storage keeps uploaded images in a directory under random UUID names.
type Storage struct {
	dir string
}

var _ Store = (*Storage)(nil)

// NewStorage creates the image directory if needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Save writes r to a new file and returns the generated name. The extension
// of originalName is preserved; ".jpg" is used when it has none.
func (s *Storage) Save(ctx context.Context, r io.Reader, originalName string) (string, error) {
	name, err := newName(originalName)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxImageSize+1))
	closeErr := f.Close()
	if err == nil && n > MaxImageSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write image file: %w", err)
	}

	return name, nil
}

// Open returns the image with the given name and its modification time.
func (s *Storage) Open(ctx context.Context, name string) (io.ReadSeekCloser, time.Time, error) {
	if err := ValidateName(name); err != nil {
		return nil, time.Time{}, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("open image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, time.Time{}, fmt.Errorf("stat image: %w", err)
	}
	return f, info.ModTime(), nil
}

// Remove deletes the image with the given name.
func (s *Storage) Remove(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// newName returns a fresh image name keeping the lowercased extension of
// originalName.
func newName(originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".jpg"
	}
	if !allowedExtTypes[ext] {
		return "", ErrUnsupported
	}
	return uuid.NewString() + ext, nil
}

// ValidateName accepts only names produced by Save: a UUID plus an allowed
// extension. This keeps request paths from escaping the image directory.
func ValidateName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtTypes[ext] {
		return ErrInvalidName
	}
	if _, err := uuid.Parse(strings.TrimSuffix(name, filepath.Ext(name))); err != nil {
		return ErrInvalidName
	}
	return nil
}
