package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/analysis/suggestion"
	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/metrics"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/history"
)

// Generator is the generation capability used by the orchestrator.
type Generator interface {
	Validate(message string) error
	Generate(ctx context.Context, history []chat.ContextMessage, message string) (string, error)
	Probe(ctx context.Context) error
	BackendName() string
}

// State is a step of one orchestrated request.
type State string

const (
	StateReceived         State = "received"
	StateSessionResolved  State = "session-resolved"
	StateContextAssembled State = "context-assembled"
	StateGenerating       State = "generating"
	StatePersisting       State = "persisting"
	StateResponded        State = "responded"
	StateFailed           State = "failed"
)

// Transition is reported to observers on every state change.
type Transition struct {
	State     State     `json:"state"`
	SessionID string    `json:"sessionId,omitempty"`
	At        time.Time `json:"at"`
	Err       error     `json:"-"`
}

// Observer receives transitions of a single request.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

func (f ObserverFunc) OnTransition(t Transition) { f(t) }

// Request is one inbound chat message.
type Request struct {
	Message   string
	SessionID string
	UserID    string
	History   []chat.ContextMessage
}

// Response is returned once the reply has been generated.
type Response struct {
	Reply         string
	SessionID     string
	Timestamp     time.Time
	Suggestions   []string
	Persisted     bool
	HistorySource history.Source
}

// Outcomes recorded in the chat request counter.
const (
	OutcomeResponded   = "responded"
	OutcomeUnpersisted = "responded_unpersisted"
	OutcomeInvalid     = "invalid"
	OutcomeFailed      = "failed"
)

// Orchestrator ties history, generation and persistence together.
// It holds no per-session lock; the store orders turns by its own sequence.
type Orchestrator struct {
	store     chat.Store
	assembler *history.Assembler
	generator Generator
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithNow replaces the clock used for turn timestamps and session ids.
func WithNow(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator wires the request pipeline.
func NewOrchestrator(store chat.Store, assembler *history.Assembler, generator Generator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		assembler: assembler,
		generator: generator,
		logger:    zap.NewNop(),
		metrics:   metrics.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate applies the inbound message checks without running the pipeline.
func (o *Orchestrator) Validate(message string) error {
	return o.generator.Validate(message)
}

// Handle runs one message through the pipeline. Errors are *chat.ValidationError
// or *chat.GenerationError; persistence failures never fail the call.
func (o *Orchestrator) Handle(ctx context.Context, req Request, observers ...Observer) (*Response, error) {
	run := &run{
		orchestrator: o,
		logger:       logging.FromContext(ctx, o.logger),
		observers:    observers,
	}
	run.enter(StateReceived, req.SessionID, nil)

	if err := o.generator.Validate(req.Message); err != nil {
		run.enter(StateFailed, req.SessionID, err)
		o.metrics.RecordChat(OutcomeInvalid)
		return nil, err
	}

	// Once accepted the request runs to completion even if the caller leaves.
	ctx = context.WithoutCancel(ctx)

	sessionID := req.SessionID
	if strings.TrimSpace(sessionID) == "" {
		sessionID = NewSessionID(req.UserID, o.now())
	}
	run.logger = run.logger.With(zap.String("session_id", sessionID))
	run.enter(StateSessionResolved, sessionID, nil)

	assembled := o.assembler.Assemble(ctx, sessionID, req.History)
	run.logger.Debug("context assembled",
		zap.String("source", string(assembled.Source)),
		zap.Int("messages", len(assembled.Messages)),
	)
	run.enter(StateContextAssembled, sessionID, nil)

	run.enter(StateGenerating, sessionID, nil)
	userAt := o.now()
	reply, err := o.generator.Generate(ctx, assembled.Messages, req.Message)
	if err != nil {
		run.logger.Error("generation failed",
			zap.String("backend", o.generator.BackendName()),
			zap.Error(err),
		)
		run.enter(StateFailed, sessionID, err)
		o.metrics.RecordChat(OutcomeFailed)
		if !chat.IsGeneration(err) {
			err = &chat.GenerationError{Backend: o.generator.BackendName(), Cause: err}
		}
		return nil, err
	}
	replyAt := o.now()
	if replyAt.Before(userAt) {
		replyAt = userAt
	}

	run.enter(StatePersisting, sessionID, nil)
	persisted := o.persist(ctx, run.logger, req, sessionID, reply, userAt, replyAt)

	resp := &Response{
		Reply:         reply,
		SessionID:     sessionID,
		Timestamp:     replyAt.UTC(),
		Suggestions:   suggestion.Analyze(reply, req.Message).Suggestions,
		Persisted:     persisted,
		HistorySource: assembled.Source,
	}

	outcome := OutcomeResponded
	if !persisted {
		outcome = OutcomeUnpersisted
	}
	o.metrics.RecordChat(outcome)
	run.enter(StateResponded, sessionID, nil)
	return resp, nil
}

// persist writes the user turn then the reply. The reply is not written when
// the user turn could not be.
func (o *Orchestrator) persist(ctx context.Context, logger *zap.Logger, req Request, sessionID, reply string, userAt, replyAt time.Time) bool {
	userTurn := chat.NewUserTurn(sessionID, req.UserID, req.Message, userAt)
	if err := o.store.Append(ctx, userTurn); err != nil {
		o.metrics.RecordPersistenceFailure("append_user")
		logger.Error("failed to persist user turn", zap.Error(err))
		return false
	}

	aiTurn := chat.NewAITurn(sessionID, req.UserID, reply, replyAt, replyAt.Sub(userAt))
	if err := o.store.Append(ctx, aiTurn); err != nil {
		o.metrics.RecordPersistenceFailure("append_ai")
		logger.Error("failed to persist ai turn", zap.Error(err))
		return false
	}
	return true
}

type run struct {
	orchestrator *Orchestrator
	logger       *zap.Logger
	observers    []Observer
}

func (r *run) enter(state State, sessionID string, err error) {
	t := Transition{State: state, SessionID: sessionID, At: r.orchestrator.now().UTC(), Err: err}
	if err != nil {
		r.logger.Debug("chat state", zap.String("state", string(state)), zap.Error(err))
	} else {
		r.logger.Debug("chat state", zap.String("state", string(state)))
	}
	for _, observer := range r.observers {
		if observer != nil {
			observer.OnTransition(t)
		}
	}
}

// NewSessionID builds session_<user|anon>_<unix millis>_<8 hex>.
func NewSessionID(userID string, at time.Time) string {
	owner := strings.TrimSpace(userID)
	if owner == "" {
		owner = "anon"
	}
	return fmt.Sprintf("session_%s_%d_%s", owner, at.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
