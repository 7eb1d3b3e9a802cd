package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/smartshop/internal/account"
	"github.com/hyperengineering/smartshop/internal/docstore"
	"github.com/hyperengineering/smartshop/internal/media"
	"github.com/hyperengineering/smartshop/internal/store"
	"github.com/hyperengineering/smartshop/migrations"
)

const testSecret = "test-secret-key-0123456789abcdef0123"

type testEnv struct {
	server   *httptest.Server
	docs     *docstore.Store
	accounts *account.Service
	images   *media.Storage
}

// newTestEnv starts a document service over a fresh SQLite database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithTTL(t, time.Hour)
}

// newTestEnvWithTTL is newTestEnv with the given token lifetime.
func newTestEnvWithTTL(t *testing.T, tokenTTL time.Duration) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := store.OpenDB(filepath.Join(dir, "server.db"), migrations.ServerDir)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}

	docs := docstore.New(db)
	accounts, err := account.NewService(db, testSecret, tokenTTL)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	images, err := media.NewStorage(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}

	env := &testEnv{docs: docs, accounts: accounts, images: images}
	env.server = httptest.NewUnstartedServer(nil)
	publicURL := "http://" + env.server.Listener.Addr().String()
	env.server.Config.Handler = NewRouter(NewHandler(docs, accounts, images, publicURL, "1.0.0"))
	env.server.Start()

	t.Cleanup(func() {
		env.server.Close()
		docs.Close()
		db.Close()
	})
	return env
}

// token signs up a user and returns a bearer token for it.
func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	if _, err := e.accounts.SignUp(ctx, "owner@example.com", "password1"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	tok, err := e.accounts.Login(ctx, "owner@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return tok.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			r = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}
