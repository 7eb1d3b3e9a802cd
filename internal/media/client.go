package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/smartshop/internal/types"
)

// ImagesPath is the document-service route for images.
const ImagesPath = "/api/v1/images"

// Client uploads images to the document service.
type Client struct {
	baseURL string
	token   func() string
	client  *http.Client
}

// NewClient creates a Client. token supplies the current bearer token.
func NewClient(baseURL string, token func() string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload sends the image at path and returns its public URL.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ImagesPath, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload image: unexpected status %d", resp.StatusCode)
	}

	var out types.ImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return out.URL, nil
}

// Delete removes a previously uploaded image by URL. Failures are logged and
// reported as false.
func (c *Client) Delete(ctx context.Context, imageURL string) bool {
	name := imageURL[strings.LastIndex(imageURL, "/")+1:]
	if ValidateName(name) != nil {
		slog.Warn("image delete skipped",
			"component", "media",
			"action", "delete_invalid_url",
			"url", imageURL,
		)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+ImagesPath+"/"+name, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.token())

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("image delete failed",
			"component", "media",
			"action", "delete_failed",
			"url", imageURL,
			"error", err,
		)
		return false
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusNoContent
}
