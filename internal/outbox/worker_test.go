package outbox_test

import (
	"context"
	"errors"
	"testing"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/outbox"
)

type MockStore struct {
	entries   map[string]*models.OutboxEntry
	order     []string
	synced    []string
	attempts  map[string]int
	failMarks int
}

func NewMockStore() *MockStore {
	return &MockStore{
		entries:  make(map[string]*models.OutboxEntry),
		attempts: make(map[string]int),
	}
}

func (m *MockStore) InsertOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error {
	if _, exists := m.entries[entry.ID]; !exists {
		m.order = append(m.order, entry.ID)
	}
	m.entries[entry.ID] = entry
	return nil
}

func (m *MockStore) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	var pending []models.OutboxEntry
	for _, id := range m.order {
		entry := m.entries[id]
		if !entry.Synced {
			pending = append(pending, *entry)
		}
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (m *MockStore) MarkOutboxSynced(ctx context.Context, id string) error {
	if m.failMarks > 0 {
		m.failMarks--
		return errors.New("connection reset")
	}
	m.entries[id].Synced = true
	m.synced = append(m.synced, id)
	return nil
}

func (m *MockStore) BumpOutboxAttempts(ctx context.Context, id string) error {
	m.attempts[id]++
	return nil
}

// MockScanner commits like the real ledger: a token that already
// landed comes back as a conflict instead of a second award.
type MockScanner struct {
	calls     map[string]int
	failure   map[string]error
	committed map[string]int
}

func NewMockScanner() *MockScanner {
	return &MockScanner{
		calls:     make(map[string]int),
		failure:   make(map[string]error),
		committed: make(map[string]int),
	}
}

func (m *MockScanner) ReplayScan(ctx context.Context, userID, stallID, token string) (*models.ScanResponse, error) {
	key := userID + ":" + stallID
	m.calls[key]++
	if err, exists := m.failure[key]; exists {
		return nil, err
	}
	if m.committed[token] > 0 {
		return nil, models.ErrConflict
	}
	m.committed[token]++
	return &models.ScanResponse{PointsEarned: 50}, nil
}

func setupWorker(store *MockStore, scanner *MockScanner) *outbox.Worker {
	return outbox.NewWorker(store, scanner, logger.NewLogger())
}

func TestDrainReplaysAndMarksSynced(t *testing.T) {
	store := NewMockStore()
	scanner := NewMockScanner()
	_ = store.InsertOutboxEntry(context.Background(), &models.OutboxEntry{ID: "ob-1", IdempotencyToken: "tok-1", UserID: "u1", StallID: "s1"})
	_ = store.InsertOutboxEntry(context.Background(), &models.OutboxEntry{ID: "ob-2", IdempotencyToken: "tok-2", UserID: "u1", StallID: "s2"})

	setupWorker(store, scanner).Drain(context.Background())

	if len(store.synced) != 2 {
		t.Fatalf("Expected 2 synced entries, got %d", len(store.synced))
	}
	if scanner.calls["u1:s1"] != 1 || scanner.calls["u1:s2"] != 1 {
		t.Errorf("Each entry should be replayed once: %+v", scanner.calls)
	}

	// A second drain finds nothing left.
	setupWorker(store, scanner).Drain(context.Background())
	if scanner.calls["u1:s1"] != 1 {
		t.Errorf("Synced entry replayed again: %d", scanner.calls["u1:s1"])
	}
}

func TestDrainDropsPermanentFailures(t *testing.T) {
	store := NewMockStore()
	scanner := NewMockScanner()
	scanner.failure["ghost:s1"] = models.ErrNotFound
	_ = store.InsertOutboxEntry(context.Background(), &models.OutboxEntry{ID: "ob-1", IdempotencyToken: "tok-1", UserID: "ghost", StallID: "s1"})

	setupWorker(store, scanner).Drain(context.Background())

	// Unfixable entries leave the queue instead of clogging it.
	if len(store.synced) != 1 {
		t.Fatalf("Expected the entry to be dropped, synced=%v", store.synced)
	}
	if scanner.calls["ghost:s1"] != 1 {
		t.Errorf("Permanent failure should not be retried: %d calls", scanner.calls["ghost:s1"])
	}
}

func TestDrainKeepsTransientFailuresPending(t *testing.T) {
	store := NewMockStore()
	scanner := NewMockScanner()
	scanner.failure["u1:s1"] = errors.New("db down")
	_ = store.InsertOutboxEntry(context.Background(), &models.OutboxEntry{ID: "ob-1", IdempotencyToken: "tok-1", UserID: "u1", StallID: "s1"})

	setupWorker(store, scanner).Drain(context.Background())

	if len(store.synced) != 0 {
		t.Fatalf("Transient failure must stay pending, synced=%v", store.synced)
	}
	if store.attempts["ob-1"] != 1 {
		t.Errorf("Expected 1 attempt bump, got %d", store.attempts["ob-1"])
	}
	// In-process retries before giving up for this cycle.
	if scanner.calls["u1:s1"] != 4 {
		t.Errorf("Expected 4 tries (1 + 3 retries), got %d", scanner.calls["u1:s1"])
	}

	// Once the dependency recovers, the next drain clears it.
	delete(scanner.failure, "u1:s1")
	setupWorker(store, scanner).Drain(context.Background())
	if len(store.synced) != 1 {
		t.Errorf("Recovered entry not synced: %v", store.synced)
	}
}

func TestDrainFailedSyncMarkDoesNotDoubleAward(t *testing.T) {
	store := NewMockStore()
	store.failMarks = 1
	scanner := NewMockScanner()
	_ = store.InsertOutboxEntry(context.Background(), &models.OutboxEntry{ID: "ob-1", IdempotencyToken: "tok-1", UserID: "u1", StallID: "s1"})

	worker := setupWorker(store, scanner)

	// First drain commits the scan but fails to flag the entry.
	worker.Drain(context.Background())
	if len(store.synced) != 0 {
		t.Fatalf("Mark was supposed to fail, synced=%v", store.synced)
	}
	if scanner.committed["tok-1"] != 1 {
		t.Fatalf("Expected 1 committed award, got %d", scanner.committed["tok-1"])
	}

	// The entry is still pending, so the next drain picks it up again.
	// The ledger rejects the token-derived event and only the flag moves.
	worker.Drain(context.Background())
	if scanner.committed["tok-1"] != 1 {
		t.Errorf("Offline scan tok-1 was awarded %d times", scanner.committed["tok-1"])
	}
	if len(store.synced) != 1 || !store.entries["ob-1"].Synced {
		t.Errorf("Replayed entry should end up synced: %v", store.synced)
	}
}
