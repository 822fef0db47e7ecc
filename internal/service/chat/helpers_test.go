package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	chatmodel "github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/jelajah/backend/internal/service/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/history"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

var errStoreDown = errors.New("database is down")

// flakyStore counts appends and can fail selected operations.
type flakyStore struct {
	*chatmodel.MemoryStore

	mu        sync.Mutex
	appends   int
	appendErr error
	listErr   error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: chatmodel.NewMemoryStore()}
}

func (s *flakyStore) Append(ctx context.Context, turn *chatmodel.Turn) error {
	s.mu.Lock()
	s.appends++
	err := s.appendErr
	s.mu.Unlock()
	if err != nil {
		return chatmodel.NewPersistenceError("append", err)
	}
	return s.MemoryStore.Append(ctx, turn)
}

func (s *flakyStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]chatmodel.Turn, error) {
	if s.listErr != nil {
		return nil, chatmodel.NewPersistenceError("list", s.listErr)
	}
	return s.MemoryStore.ListBySession(ctx, sessionID, limit)
}

func (s *flakyStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends
}

// recordingBackend remembers the context it was called with.
type recordingBackend struct {
	mu      sync.Mutex
	calls   int
	history []chatmodel.ContextMessage
	reply   string
	err     error
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) Generate(_ context.Context, history []chatmodel.ContextMessage, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.history = history
	if b.err != nil {
		return "", b.err
	}
	return b.reply, nil
}

type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), step: 250 * time.Millisecond}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func newClient(backend ai.Backend) *ai.Client {
	return ai.NewClient(backend, ai.WithPolicy(retry.NoRetry()), ai.WithMaxLength(500))
}

func newOrchestrator(store chatmodel.Store, backend ai.Backend, opts ...chatservice.OrchestratorOption) *chatservice.Orchestrator {
	return chatservice.NewOrchestrator(store, history.NewAssembler(store, history.DefaultLimit, nil), newClient(backend), opts...)
}

func seedTurns(t *testing.T, store chatmodel.Store, sessionID, userID string, texts ...string) {
	t.Helper()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, text := range texts {
		at := base.Add(time.Duration(i) * time.Minute)
		turn := chatmodel.NewUserTurn(sessionID, userID, text, at)
		if i%2 == 1 {
			turn = chatmodel.NewAITurn(sessionID, userID, text, at, 1500*time.Millisecond)
		}
		require.NoError(t, store.Append(context.Background(), turn))
	}
}

type stateRecorder struct {
	mu     sync.Mutex
	states []chatservice.State
}

func (r *stateRecorder) OnTransition(t chatservice.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, t.State)
}
