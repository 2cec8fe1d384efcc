package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"scorelink/internal/models"
	"scorelink/internal/transport"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// Mock transport
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) ConnectedNodes(ctx context.Context) ([]transport.Node, error) {
	args := m.Called(ctx)
	nodes, _ := args.Get(0).([]transport.Node)
	return nodes, args.Error(1)
}

func (m *mockTransport) SendMessage(ctx context.Context, nodeID, path string, data []byte) error {
	args := m.Called(ctx, nodeID, path, data)
	return args.Error(0)
}

// Mock match store
type mockMatchStore struct {
	mock.Mock
}

func (m *mockMatchStore) InsertIfNotExists(ctx context.Context, result models.MatchResult) (int64, bool, error) {
	args := m.Called(ctx, result)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

// Mock attempter
type mockAttempter struct {
	mock.Mock
}

func (m *mockAttempter) Attempt(ctx context.Context, entry models.PendingMessage) models.AttemptResult {
	args := m.Called(ctx, entry)
	return args.Get(0).(models.AttemptResult)
}

type wakeCounter struct {
	mu    sync.Mutex
	wakes int
}

func (w *wakeCounter) Wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wakes++
}

func (w *wakeCounter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wakes
}

// memPendingStore is an in-memory PendingStore with the same guarded semantics as
// the sqlite implementation.
type memPendingStore struct {
	mu    sync.Mutex
	entry *models.PendingMessage
	err   error
}

func (s *memPendingStore) Save(ctx context.Context, entry models.PendingMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	var replaced string
	if s.entry != nil && s.entry.IdempotencyKey != entry.IdempotencyKey {
		replaced = s.entry.IdempotencyKey
	}
	e := entry
	s.entry = &e
	return replaced, nil
}

func (s *memPendingStore) Read(ctx context.Context) (*models.PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.entry == nil {
		return nil, nil
	}
	e := *s.entry
	return &e, nil
}

func (s *memPendingStore) ClearIfMatches(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.entry == nil || s.entry.IdempotencyKey != key {
		return false, nil
	}
	s.entry = nil
	return true, nil
}

func (s *memPendingStore) RecordAttempt(ctx context.Context, key string, attemptCount int, nextRetryAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.entry == nil || s.entry.IdempotencyKey != key {
		return false, nil
	}
	if attemptCount > s.entry.AttemptCount {
		s.entry.AttemptCount = attemptCount
	}
	if nextRetryAt.After(s.entry.NextRetryAt) {
		s.entry.NextRetryAt = nextRetryAt
	}
	return true, nil
}

func (s *memPendingStore) UpdateTargetNode(ctx context.Context, key, nodeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil || s.entry.IdempotencyKey != key {
		return false, nil
	}
	s.entry.TargetNodeID = nodeID
	return true, nil
}

func (s *memPendingStore) Discard(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	had := s.entry != nil
	s.entry = nil
	return had, nil
}

func (s *memPendingStore) current() *models.PendingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return nil
	}
	e := *s.entry
	return &e
}
