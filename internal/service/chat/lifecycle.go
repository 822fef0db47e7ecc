package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/analysis/suggestion"
	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
)

// Health statuses.
const (
	StatusHealthy   = "Healthy"
	StatusUnhealthy = "Unhealthy"
)

const (
	defaultProbeTimeout = 10 * time.Second
	defaultPageSize     = 20
)

// Health is the result of a generation probe.
type Health struct {
	Status    string        `json:"status"`
	Backend   string        `json:"backend"`
	Latency   time.Duration `json:"-"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Stats summarises a user's chat activity.
type Stats struct {
	TotalChats          int64
	TotalSessions       int64
	AverageResponseTime float64 // milliseconds
	Uptime              time.Duration
}

// HistoryQuery selects a page of turns by session, or by user when SessionID
// is empty.
type HistoryQuery struct {
	SessionID string
	UserID    string
	Page      int
	Limit     int
}

// Lifecycle exposes session operations around the store.
type Lifecycle struct {
	store        chat.Store
	generator    Generator
	logger       *zap.Logger
	startedAt    time.Time
	probeTimeout time.Duration
	now          func() time.Time
}

// NewLifecycle creates the session layer. startedAt anchors the uptime figure.
func NewLifecycle(store chat.Store, generator Generator, logger *zap.Logger, startedAt time.Time) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	return &Lifecycle{
		store:        store,
		generator:    generator,
		logger:       logger,
		startedAt:    startedAt,
		probeTimeout: defaultProbeTimeout,
		now:          time.Now,
	}
}

// Suggestions derives follow-up prompts from the latest turn of a session.
// It never fails.
func (l *Lifecycle) Suggestions(ctx context.Context, sessionID string) []string {
	if strings.TrimSpace(sessionID) == "" {
		return suggestion.Defaults()
	}

	turns, err := l.store.ListBySession(ctx, sessionID, 1)
	if err != nil {
		logging.FromContext(ctx, l.logger).Warn("suggestions fell back to defaults",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return suggestion.Defaults()
	}
	if len(turns) == 0 {
		return suggestion.Defaults()
	}
	return suggestion.Analyze(turns[len(turns)-1].Text, "").Suggestions
}

// Clear deletes every turn of a session and returns how many were removed.
func (l *Lifecycle) Clear(ctx context.Context, sessionID string) (int64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, chat.NewValidationError("sessionId", "sessionId is required")
	}

	deleted, err := l.store.DeleteBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx, l.logger).Info("session cleared",
		zap.String("session_id", sessionID),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

// History returns a page of turns, oldest first within the page.
func (l *Lifecycle) History(ctx context.Context, q HistoryQuery) (chat.Page, error) {
	defer logging.Duration(ctx, l.logger, "Lifecycle.History")()

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if strings.TrimSpace(q.SessionID) != "" {
		return l.store.PageBySession(ctx, q.SessionID, q.Page, q.Limit)
	}
	if strings.TrimSpace(q.UserID) == "" {
		return chat.Page{}, chat.ErrUnauthenticated
	}
	return l.store.PageByUser(ctx, q.UserID, q.Page, q.Limit)
}

// Stats aggregates the user's turns. It is read-only.
func (l *Lifecycle) Stats(ctx context.Context, userID string) (Stats, error) {
	if strings.TrimSpace(userID) == "" {
		return Stats{}, chat.ErrUnauthenticated
	}

	defer logging.Duration(ctx, l.logger, "Lifecycle.Stats")()

	aggregate, err := l.store.StatsByUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalChats:          aggregate.TotalTurns,
		TotalSessions:       aggregate.TotalSessions,
		AverageResponseTime: aggregate.AverageResponseMs,
		Uptime:              l.now().Sub(l.startedAt),
	}, nil
}

// Health probes the generation backend only.
func (l *Lifecycle) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, l.probeTimeout)
	defer cancel()

	started := l.now()
	err := l.generator.Probe(ctx)
	report := Health{
		Status:    StatusHealthy,
		Backend:   l.generator.BackendName(),
		Latency:   l.now().Sub(started),
		CheckedAt: l.now().UTC(),
	}
	if err != nil {
		report.Status = StatusUnhealthy
		logging.FromContext(ctx, l.logger).Warn("generation probe failed", zap.Error(err))
	}
	return report
}

// Ready pings the store.
func (l *Lifecycle) Ready(ctx context.Context) error {
	return l.store.Ping(ctx)
}
