// Package history turns persisted turns into generation context.
package history

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/jelajah/backend/internal/logging"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
)

// DefaultLimit is the number of turns used for live chat.
const DefaultLimit = 10

// Source tells where an assembled context came from.
type Source string

const (
	SourceNone    Source = "none"
	SourceStore   Source = "store"
	SourceRequest Source = "request"
)

// Context is the assembled prompt context, oldest first.
type Context struct {
	Messages []chat.ContextMessage
	Source   Source
}

// Assembler reads recent turns of a session.
type Assembler struct {
	store  chat.Store
	limit  int
	logger *zap.Logger
}

// NewAssembler creates an assembler; limit <= 0 uses DefaultLimit.
func NewAssembler(store chat.Store, limit int, logger *zap.Logger) *Assembler {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{store: store, limit: limit, logger: logger}
}

// Assemble returns the context for sessionID. Persisted turns win over inline;
// inline is used only when the session has none. A failed read degrades to an
// empty history.
func (a *Assembler) Assemble(ctx context.Context, sessionID string, inline []chat.ContextMessage) Context {
	turns, err := a.store.ListBySession(ctx, sessionID, a.limit)
	if err != nil {
		logging.FromContext(ctx, a.logger).Warn("history read failed, continuing without context",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		turns = nil
	}

	if messages := FromTurns(turns); len(messages) > 0 {
		return Context{Messages: messages, Source: SourceStore}
	}
	if messages := normalizeInline(inline, a.limit); len(messages) > 0 {
		return Context{Messages: messages, Source: SourceRequest}
	}
	return Context{Source: SourceNone}
}

// FromTurns maps stored turns to context messages, skipping empty ones.
func FromTurns(turns []chat.Turn) []chat.ContextMessage {
	messages := make([]chat.ContextMessage, 0, len(turns))
	for _, turn := range turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, chat.ContextMessage{Role: chat.ContextRoleUser, Text: turn.Text})
		case chat.RoleAI:
			messages = append(messages, chat.ContextMessage{Role: chat.ContextRoleModel, Text: turn.Text})
		}
	}
	return messages
}

func normalizeInline(inline []chat.ContextMessage, limit int) []chat.ContextMessage {
	messages := make([]chat.ContextMessage, 0, len(inline))
	for _, msg := range inline {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		role := chat.ContextRoleUser
		switch strings.ToLower(strings.TrimSpace(msg.Role)) {
		case chat.ContextRoleModel, string(chat.RoleAI), "assistant":
			role = chat.ContextRoleModel
		}
		messages = append(messages, chat.ContextMessage{Role: role, Text: msg.Text})
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}
