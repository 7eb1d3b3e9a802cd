package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockResetPurgeStore implements ResetPurgeStore for testing
type mockResetPurgeStore struct {
	mu         sync.Mutex
	thresholds []time.Time
	purgeErr   error
	affected   int64
}

func (m *mockResetPurgeStore) PurgeExpiredResets(ctx context.Context, threshold time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = append(m.thresholds, threshold)
	if m.purgeErr != nil {
		return 0, m.purgeErr
	}
	return m.affected, nil
}

func (m *mockResetPurgeStore) getCalls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time{}, m.thresholds...)
}

func TestResetPurgeWorker_RunsOnSchedule(t *testing.T) {
	store := &mockResetPurgeStore{affected: 3}
	worker := NewResetPurgeWorker(store, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	// Wait for at least 2 ticks
	time.Sleep(130 * time.Millisecond)
	cancel()

	if calls := store.getCalls(); len(calls) < 2 {
		t.Errorf("Expected at least 2 purge calls, got %d", len(calls))
	}
}

func TestResetPurgeWorker_DoesNotRunImmediately(t *testing.T) {
	store := &mockResetPurgeStore{}
	worker := NewResetPurgeWorker(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	if calls := store.getCalls(); len(calls) != 0 {
		t.Errorf("Expected no purge calls before first tick, got %d", len(calls))
	}
}

func TestResetPurgeWorker_UsesCurrentTimeAsThreshold(t *testing.T) {
	store := &mockResetPurgeStore{}
	worker := NewResetPurgeWorker(store, time.Hour)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	worker.now = func() time.Time { return fixed }

	worker.runPurge(context.Background())

	calls := store.getCalls()
	if len(calls) != 1 || !calls[0].Equal(fixed) {
		t.Errorf("thresholds = %v, want [%v]", calls, fixed)
	}
}

func TestResetPurgeWorker_ContinuesAfterError(t *testing.T) {
	store := &mockResetPurgeStore{purgeErr: errors.New("database locked")}
	worker := NewResetPurgeWorker(store, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	if calls := store.getCalls(); len(calls) < 2 {
		t.Errorf("Expected worker to keep running after errors, got %d calls", len(calls))
	}
}
