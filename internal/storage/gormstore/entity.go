package gormstore

import (
	"time"

	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
)

// TurnEntity is the chat_turns row.
type TurnEntity struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	SessionID string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_chat_turns_session_seq,priority:1;index:idx_chat_turns_session_ts,priority:1"`
	Seq       int64     `gorm:"not null;uniqueIndex:ux_chat_turns_session_seq,priority:2"`
	UserID    string    `gorm:"type:varchar(64);index:idx_chat_turns_user_ts,priority:1"`
	Role      string    `gorm:"type:varchar(8);not null"`
	Content   string    `gorm:"type:text;not null"`
	LatencyMs int64     `gorm:"not null;default:0"`
	Timestamp time.Time `gorm:"not null;index:idx_chat_turns_session_ts,priority:2;index:idx_chat_turns_user_ts,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for TurnEntity.
func (TurnEntity) TableName() string {
	return "chat_turns"
}

func newEntity(turn *chat.Turn) *TurnEntity {
	return &TurnEntity{
		ID:        turn.ID,
		SessionID: turn.SessionID,
		UserID:    turn.UserID,
		Role:      string(turn.Role),
		Content:   turn.Text,
		LatencyMs: turn.LatencyMs,
		Timestamp: turn.Timestamp.UTC(),
	}
}

func (e TurnEntity) toDomain() chat.Turn {
	return chat.Turn{
		ID:        e.ID,
		SessionID: e.SessionID,
		UserID:    e.UserID,
		Role:      chat.Role(e.Role),
		Text:      e.Content,
		Seq:       e.Seq,
		LatencyMs: e.LatencyMs,
		Timestamp: e.Timestamp.UTC(),
	}
}

// toDomainReversed converts rows fetched newest first into oldest-first turns.
func toDomainReversed(rows []TurnEntity) []chat.Turn {
	turns := make([]chat.Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = row.toDomain()
	}
	return turns
}
