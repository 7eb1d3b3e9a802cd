package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/smartshop/internal/config"
)

// logCapture captures slog output for testing
type logCapture struct {
	mu      sync.Mutex
	entries []map[string]any
}

func (c *logCapture) handler() slog.Handler {
	return slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})
}

func (c *logCapture) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err == nil {
		c.entries = append(c.entries, entry)
	}
	return len(p), nil
}

func (c *logCapture) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var msgs []string
	for _, e := range c.entries {
		if msg, ok := e["msg"].(string); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (c *logCapture) hasMessage(msg string) bool {
	for _, m := range c.messages() {
		if m == msg {
			return true
		}
	}
	return false
}

func useLogCapture(t *testing.T) *logCapture {
	t.Helper()
	capture := &logCapture{}
	oldDefault := slog.Default()
	slog.SetDefault(slog.New(capture.handler()))
	t.Cleanup(func() { slog.SetDefault(oldDefault) })
	return capture
}

// TestStartWorker_LaunchesGoroutineAndTracksCompletion tests the startWorker helper
func TestStartWorker_LaunchesGoroutineAndTracksCompletion(t *testing.T) {
	capture := useLogCapture(t)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	startWorker(ctx, &wg, "test-worker", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker function was not called")
	}

	// Cancel and wait for worker to complete
	cancel()
	wg.Wait()

	if !capture.hasMessage("worker launched") {
		t.Error("expected 'worker launched' log message")
	}
	if !capture.hasMessage("worker exited") {
		t.Error("expected 'worker exited' log message")
	}

	capture.mu.Lock()
	defer capture.mu.Unlock()
	for _, entry := range capture.entries {
		if entry["worker"] != "test-worker" {
			t.Errorf("log entry missing worker name: %v", entry)
		}
	}
}

// TestWorkerWaitGroupIntegration verifies workers are waited on during shutdown
func TestWorkerWaitGroupIntegration(t *testing.T) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	workerCompleted := atomic.Bool{}
	startWorker(ctx, &wg, "slow-worker", func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond) // Simulate cleanup work
		workerCompleted.Store(true)
	})

	cancel()
	wg.Wait()

	if !workerCompleted.Load() {
		t.Error("wg.Wait() returned before worker completed")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestSetupLogger_WritesToRotatingFile verifies log.file receives the same
// records as the console writer.
func TestSetupLogger_WritesToRotatingFile(t *testing.T) {
	oldDefault := slog.Default()
	t.Cleanup(func() {
		closeLogFile()
		slog.SetDefault(oldDefault)
	})

	path := filepath.Join(t.TempDir(), "logs", "smartshop.log")
	var console bytes.Buffer

	setupLogger(config.LogConfig{
		Level:      "info",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}, &console)

	slog.Debug("hidden")
	slog.Info("sync engine started", "component", "sync")
	closeLogFile()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	for name, out := range map[string]string{"file": string(data), "console": console.String()} {
		if !strings.Contains(out, `"msg":"sync engine started"`) {
			t.Errorf("%s output missing record: %q", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s output contains record below level: %q", name, out)
		}
	}
}

func TestSetupLogger_TextFormat(t *testing.T) {
	oldDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(oldDefault) })

	var console bytes.Buffer
	setupLogger(config.LogConfig{Level: "debug", Format: "text"}, &console)
	slog.Debug("reconciled", "inserted", 2)

	if got := console.String(); !strings.Contains(got, "msg=reconciled") || !strings.Contains(got, "inserted=2") {
		t.Errorf("text output = %q", got)
	}
}
