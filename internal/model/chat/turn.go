package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role tags which side of the conversation produced a turn.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// ErrInvalidRole is returned by stores for a turn whose role is neither user nor ai.
var ErrInvalidRole = errors.New("invalid turn role")

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAI
}

// Turn is one immutable chat record: either the user's message or the
// generated reply. Text carries the payload for both variants.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId,omitempty"`
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	Seq       int64     `json:"seq"`
	LatencyMs int64     `json:"latencyMs,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserTurn builds the inbound variant.
func NewUserTurn(sessionID, userID, text string, at time.Time) *Turn {
	return newTurn(sessionID, userID, RoleUser, text, at)
}

// NewAITurn builds the generated-reply variant. latency is the wall time spent
// producing the reply.
func NewAITurn(sessionID, userID, text string, at time.Time, latency time.Duration) *Turn {
	turn := newTurn(sessionID, userID, RoleAI, text, at)
	turn.LatencyMs = latency.Milliseconds()
	return turn
}

func newTurn(sessionID, userID string, role Role, text string, at time.Time) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Text:      text,
		Timestamp: at.UTC(),
	}
}

// ContextMessage is one entry of the prompt context handed to a generation
// backend. Role uses the backend vocabulary ("user" / "model").
type ContextMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	ContextRoleUser  = "user"
	ContextRoleModel = "model"
)

// UserStats aggregates a user's chat activity.
type UserStats struct {
	TotalTurns        int64
	TotalSessions     int64
	AverageResponseMs float64
}
