package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
)

// Mock implementations

type mockQueue struct {
	mu    sync.Mutex
	items []*domain.QueueItem
	cap   int
}

func newMockQueue(capacity int) *mockQueue {
	return &mockQueue{cap: capacity}
}

func (m *mockQueue) Push(ctx context.Context, item *domain.QueueItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	evicted := 0
	for m.cap > 0 && len(m.items) > m.cap {
		m.items = m.items[1:]
		evicted++
	}
	return evicted, nil
}

func (m *mockQueue) PushFront(ctx context.Context, items []*domain.QueueItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(append([]*domain.QueueItem{}, items...), m.items...)
	evicted := 0
	if m.cap > 0 && len(m.items) > m.cap {
		evicted = len(m.items) - m.cap
		m.items = m.items[:m.cap]
	}
	return evicted, nil
}

func (m *mockQueue) DrainAll(ctx context.Context) ([]*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items, nil
}

func (m *mockQueue) Len(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *mockQueue) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.items))
	for i, it := range m.items {
		ids[i] = it.MessageID
	}
	return ids
}

type mockFeedbackRepo struct {
	mu      sync.Mutex
	records map[string]*domain.FeedbackRecord
	failIDs map[string]bool
	since   time.Time
	limit   int
}

func newMockFeedbackRepo() *mockFeedbackRepo {
	return &mockFeedbackRepo{records: make(map[string]*domain.FeedbackRecord), failIDs: make(map[string]bool)}
}

func (m *mockFeedbackRepo) Upsert(ctx context.Context, rec *domain.FeedbackRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[rec.MessageID] {
		return 0, context.DeadlineExceeded
	}
	m.records[rec.MessageID] = rec
	return int64(len(m.records)), nil
}

func (m *mockFeedbackRepo) ListSince(ctx context.Context, since time.Time, app string) ([]*domain.FeedbackRecord, error) {
	m.since = since
	var out []*domain.FeedbackRecord
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out, nil
}

func (m *mockFeedbackRepo) Stats(ctx context.Context, since time.Time) (*domain.FeedbackStats, error) {
	m.since = since
	stats := domain.NewFeedbackStats(since)
	stats.Total = len(m.records)
	return stats, nil
}

func (m *mockFeedbackRepo) ListActionable(ctx context.Context, since time.Time, limit int) ([]*domain.FeedbackRecord, error) {
	m.since, m.limit = since, limit
	return nil, nil
}

func (m *mockFeedbackRepo) ListNegative(ctx context.Context, since time.Time, limit int) ([]*domain.FeedbackRecord, error) {
	m.since, m.limit = since, limit
	return nil, nil
}

func (m *mockFeedbackRepo) ListByType(ctx context.Context, since time.Time, t domain.FeedbackType, limit int) ([]*domain.FeedbackRecord, error) {
	m.since, m.limit = since, limit
	return nil, nil
}

// mockLLM answers with reply(req) and counts calls
type mockLLM struct {
	mu       sync.Mutex
	calls    int
	requests []domain.CompletionRequest
	reply    func(req domain.CompletionRequest) (string, error)
}

func (m *mockLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.reply(req)
}

type mockSettingsRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func newMockSettingsRepo() *mockSettingsRepo {
	return &mockSettingsRepo{values: make(map[string]string)}
}

func (m *mockSettingsRepo) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *mockSettingsRepo) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

type mockDigestRunRepo struct {
	runs []*domain.DigestRun
}

func (m *mockDigestRunRepo) Record(ctx context.Context, run *domain.DigestRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockDigestRunRepo) List(ctx context.Context, limit int) ([]*domain.DigestRun, error) {
	return m.runs, nil
}

type mockChatRepo struct {
	mu       sync.Mutex
	history  map[string][]domain.ChatMessage
	failing  map[string]bool
	afters   map[string]time.Time
	sent     map[string][]*domain.Digest
	sendFail bool
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{
		history: make(map[string][]domain.ChatMessage),
		failing: make(map[string]bool),
		afters:  make(map[string]time.Time),
		sent:    make(map[string][]*domain.Digest),
	}
}

func (m *mockChatRepo) FetchHistory(ctx context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afters[channelID] = after
	if m.failing[channelID] {
		return nil, context.DeadlineExceeded
	}
	return m.history[channelID], nil
}

func (m *mockChatRepo) SendDigest(ctx context.Context, channelID string, digest *domain.Digest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendFail {
		return context.DeadlineExceeded
	}
	m.sent[channelID] = append(m.sent[channelID], digest)
	return nil
}
