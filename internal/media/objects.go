package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/smartshop/internal/config"
)

// Presigner is implemented by stores that can hand out time-limited direct
// download URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, name string) (url string, expiry time.Time, err error)
}

// objectClient defines the minimal object-storage operations used by
// ObjectStorage. This interface enables testing with mock implementations.
type objectClient interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, key string) (io.ReadSeekCloser, time.Time, error)
	StatObject(ctx context.Context, key string) error
	RemoveObject(ctx context.Context, key string) error
	PresignedGetObject(ctx context.Context, key string, expiry time.Duration) (*url.URL, error)
}

// minioClientWrapper binds *minio.Client to one bucket and maps missing
// objects to ErrNotFound.
type minioClientWrapper struct {
	client *minio.Client
	bucket string
}

func (w *minioClientWrapper) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := w.client.PutObject(ctx, w.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (w *minioClientWrapper) GetObject(ctx context.Context, key string) (io.ReadSeekCloser, time.Time, error) {
	obj, err := w.client.GetObject(ctx, w.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, time.Time{}, mapObjectError(err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, time.Time{}, mapObjectError(err)
	}
	return obj, info.LastModified, nil
}

func (w *minioClientWrapper) StatObject(ctx context.Context, key string) error {
	_, err := w.client.StatObject(ctx, w.bucket, key, minio.StatObjectOptions{})
	return mapObjectError(err)
}

func (w *minioClientWrapper) RemoveObject(ctx context.Context, key string) error {
	return w.client.RemoveObject(ctx, w.bucket, key, minio.RemoveObjectOptions{})
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, key string, expiry time.Duration) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, w.bucket, key, expiry, nil)
}

func mapObjectError(err error) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

// ObjectStorage keeps uploaded images in S3-compatible object storage.
type ObjectStorage struct {
	client    objectClient
	urlExpiry time.Duration
}

var (
	_ Store     = (*ObjectStorage)(nil)
	_ Presigner = (*ObjectStorage)(nil)
)

// Save uploads r under a generated name, like Storage.Save.
func (s *ObjectStorage) Save(ctx context.Context, r io.Reader, originalName string) (string, error) {
	name, err := newName(originalName)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageSize {
		return "", ErrTooLarge
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.client.PutObject(ctx, objectKey(name), bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("upload image to object storage: %w", err)
	}
	return name, nil
}

// Open streams the named image from object storage.
func (s *ObjectStorage) Open(ctx context.Context, name string) (io.ReadSeekCloser, time.Time, error) {
	if err := ValidateName(name); err != nil {
		return nil, time.Time{}, err
	}
	return s.client.GetObject(ctx, objectKey(name))
}

// Remove deletes the named image. Object stores delete idempotently, so the
// object is checked first to report ErrNotFound like Storage does.
func (s *ObjectStorage) Remove(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	key := objectKey(name)
	if err := s.client.StatObject(ctx, key); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, key); err != nil {
		return fmt.Errorf("remove image from object storage: %w", err)
	}
	return nil
}

// PresignedURL returns a pre-signed GET URL for the named image.
func (s *ObjectStorage) PresignedURL(ctx context.Context, name string) (string, time.Time, error) {
	if err := ValidateName(name); err != nil {
		return "", time.Time{}, err
	}
	key := objectKey(name)
	if err := s.client.StatObject(ctx, key); err != nil {
		return "", time.Time{}, err
	}
	presigned, err := s.client.PresignedGetObject(ctx, key, s.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), time.Now().Add(s.urlExpiry), nil
}

// NewStore creates the image store for the configuration: a local
// directory when no bucket is set, object storage otherwise.
func NewStore(cfg config.MediaConfig) (Store, error) {
	if cfg.Bucket == "" {
		return NewStorage(cfg.Dir)
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &ObjectStorage{
		client:    &minioClientWrapper{client: client, bucket: cfg.Bucket},
		urlExpiry: time.Duration(cfg.URLExpiry),
	}, nil
}

// objectKey returns the object key for an image.
// Convention: images/{name}
func objectKey(name string) string {
	return "images/" + name
}
