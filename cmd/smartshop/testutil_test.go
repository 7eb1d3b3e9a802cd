package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/smartshop/internal/account"
	"github.com/hyperengineering/smartshop/internal/api"
	"github.com/hyperengineering/smartshop/internal/docstore"
	"github.com/hyperengineering/smartshop/internal/media"
	"github.com/hyperengineering/smartshop/internal/store"
	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/hyperengineering/smartshop/migrations"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	testSecret   = "cli-test-secret-0123456789abcdefghij"
	testEmail    = "owner@example.com"
	testPassword = "password1"
)

// lockedBuffer is a bytes.Buffer safe for the concurrent writes of a
// running daemon and the document service it talks to.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testService is a document service plus a client environment pointed at it.
type testService struct {
	server    *httptest.Server
	docs      *docstore.Store
	cachePath string
}

// newTestService starts a document service and points the smartshop
// configuration at it through SMARTSHOP_* variables.
func newTestService(t *testing.T) *testService {
	t.Helper()

	dir := t.TempDir()
	db, err := store.OpenDB(filepath.Join(dir, "server.db"), migrations.ServerDir)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	docs := docstore.New(db)
	accounts, err := account.NewService(db, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	images, err := media.NewStorage(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}

	svc := &testService{docs: docs, cachePath: filepath.Join(dir, "client", "cache.db")}
	svc.server = httptest.NewUnstartedServer(nil)
	publicURL := "http://" + svc.server.Listener.Addr().String()
	svc.server.Config.Handler = api.NewRouter(api.NewHandler(docs, accounts, images, publicURL, "test"))
	svc.server.Start()

	t.Cleanup(func() {
		docs.Close()
		svc.server.Close()
		db.Close()
	})

	t.Setenv("SMARTSHOP_CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("SMARTSHOP_REMOTE_URL", svc.server.URL)
	t.Setenv("SMARTSHOP_COLLECTION", "")
	t.Setenv("SMARTSHOP_CACHE_PATH", svc.cachePath)
	t.Setenv("SMARTSHOP_SESSION_PATH", filepath.Join(dir, "client", "session.json"))
	t.Setenv("SMARTSHOP_LOG_LEVEL", "error")
	t.Setenv("SMARTSHOP_LOG_FORMAT", "")
	t.Setenv("SMARTSHOP_LOG_FILE", "")

	return svc
}

// remoteDocs returns the product collection as stored by the service.
func (s *testService) remoteDocs(t *testing.T) []types.Document {
	t.Helper()
	docs, err := s.docs.List(context.Background(), types.DefaultCollection)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	return docs
}

// resetFlags restores every flag of cmd and its children to its default.
// Cobra parses into package-level variables and keeps Changed marks, so
// state would otherwise leak between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeCmd runs the root command with args and stdin, capturing output.
func executeCmd(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return executeCmdContext(context.Background(), t, stdin, args...)
}

func executeCmdContext(ctx context.Context, t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	resetFlags(rootCmd)

	outBuf := new(lockedBuffer)
	errBuf := new(lockedBuffer)

	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err = rootCmd.ExecuteContext(ctx)

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetIn(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

// mustExecute runs a command that is expected to succeed.
func mustExecute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	stdout, stderr, err := executeCmd(t, stdin, args...)
	if err != nil {
		t.Fatalf("%v failed: %v\nstderr: %s", args, err, stderr)
	}
	return stdout
}

// signUp creates the test account through the CLI, leaving it signed in.
func signUp(t *testing.T) {
	t.Helper()
	mustExecute(t, testPassword+"\n"+testPassword+"\n", "signup", testEmail)
}
