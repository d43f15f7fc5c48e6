package queue_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-telco/internal/queue"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// startWorker runs w until ctx is cancelled; the returned channel closes once
// Run has returned.
func startWorker(ctx context.Context, w queue.Worker) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	return done
}

// deadLetter stores a campaign delivery in the shape the worker writes it.
func deadLetter(t *testing.T, store *memoryStore, key string, attempts int, createdAt time.Time) uuid.UUID {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"kind":         "campaign-send",
		"key":          key,
		"payload":      []byte(`{"campaignId":"c1","recipientId":"` + key + `"}`),
		"attempt":      attempts,
		"max_attempts": attempts,
		"available_at": createdAt.UnixNano(),
	})
	require.NoError(t, err)
	msg := "mailer timeout"
	id, err := store.InsertQueueDlq(context.Background(), queue.DLQEntry{
		Kind:           "campaign-send",
		IdempotencyKey: key,
		Payload:        raw,
		Attempts:       attempts,
		LastError:      &msg,
		CreatedAt:      createdAt,
	})
	require.NoError(t, err)
	return id
}

// memoryStore keeps dead letters newest first, like the SQL listing.
type memoryStore struct {
	mu      sync.Mutex
	entries []queue.DLQEntry
}

func newMemoryStore() *memoryStore { return &memoryStore{} }

func (m *memoryStore) InsertQueueDlq(_ context.Context, entry queue.DLQEntry) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, entry)
	slices.SortStableFunc(m.entries, func(a, b queue.DLQEntry) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return entry.ID, nil
}

func (m *memoryStore) DeleteQueueDlq(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = lo.Reject(m.entries, func(e queue.DLQEntry, _ int) bool { return e.ID == id })
	return nil
}

func (m *memoryStore) GetQueueDlq(_ context.Context, id uuid.UUID) (queue.DLQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := lo.Find(m.entries, func(e queue.DLQEntry) bool { return e.ID == id })
	if !ok {
		return queue.DLQEntry{}, sql.ErrNoRows
	}
	return entry, nil
}

func (m *memoryStore) ListQueueDlq(_ context.Context, kind string, limit, offset int) ([]queue.DLQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := m.ofKind(kind)
	if offset >= len(matched) {
		return []queue.DLQEntry{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return slices.Clone(matched), nil
}

func (m *memoryStore) CountQueueDlq(_ context.Context, kind string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.ofKind(kind))), nil
}

func (m *memoryStore) ofKind(kind string) []queue.DLQEntry {
	return lo.Filter(m.entries, func(e queue.DLQEntry, _ int) bool { return kind == "" || e.Kind == kind })
}

func (m *memoryStore) all() []queue.DLQEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}
