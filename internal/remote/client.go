// Package remote is the client side of the document service: collection
// writes over HTTP and live snapshots over a WebSocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperengineering/smartshop/internal/types"
)

// Client talks to one collection of the document service.
type Client struct {
	baseURL    string
	collection string
	token      func() string
	client     *http.Client
}

// NewClient creates a Client for collection. token supplies the current
// bearer token and may be nil for unauthenticated use (sign-up, login).
func NewClient(baseURL, collection string, token func() string) *Client {
	if collection == "" {
		collection = types.DefaultCollection
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		token:      token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Collection returns the collection name this client writes to.
func (c *Client) Collection() string {
	return c.collection
}

// Ping checks connectivity to the document service.
func (c *Client) Ping(ctx context.Context) (*types.HealthResponse, error) {
	var health types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, http.StatusOK, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Add creates a document and returns its server-assigned ID.
func (c *Client) Add(ctx context.Context, fields types.DocumentFields) (string, error) {
	var out types.AddDocumentResponse
	if err := c.do(ctx, http.MethodPost, c.documentsPath(), fields, http.StatusCreated, &out); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}
	return out.ID, nil
}

// Set replaces (or creates) the document with the given ID.
func (c *Client) Set(ctx context.Context, id string, fields types.DocumentFields) error {
	if err := c.do(ctx, http.MethodPut, c.documentsPath()+"/"+url.PathEscape(id), fields, http.StatusOK, nil); err != nil {
		return fmt.Errorf("set document %s: %w", id, err)
	}
	return nil
}

// Delete removes the document with the given ID. Deleting a missing document
// succeeds.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, c.documentsPath()+"/"+url.PathEscape(id), nil, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// List returns the current contents of the collection.
func (c *Client) List(ctx context.Context) ([]types.Document, error) {
	var out types.SnapshotResponse
	if err := c.do(ctx, http.MethodGet, c.documentsPath(), nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out.Documents, nil
}

// SignUp registers a new account.
func (c *Client) SignUp(ctx context.Context, creds types.Credentials) (*types.UserResponse, error) {
	var out types.UserResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/signup", creds, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	return &out, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, creds types.Credentials) (*types.TokenResponse, error) {
	var out types.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", creds, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &out, nil
}

// RequestPasswordReset asks the service to start a password reset for email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	req := types.PasswordResetRequest{Email: email}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/password-reset", req, http.StatusAccepted, nil); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	return nil
}

func (c *Client) documentsPath() string {
	return "/api/v1/collections/" + url.PathEscape(c.collection) + "/documents"
}

// do sends an authenticated JSON request and decodes a JSON response into
// out when non-nil. Any status other than want becomes an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if len(data) > 0 {
		// Non-problem bodies still yield a usable error from the status code.
		_ = json.Unmarshal(data, apiErr)
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
