package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
)

const maxSeqAttempts = 5

// Store implements chat.Store on gorm.
type Store struct {
	db *gorm.DB
}

// New wraps an opened and migrated gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ chat.Store = (*Store)(nil)

// Append inserts turn with the next sequence number of its session. A
// concurrent writer taking the same number trips the unique index and the
// allocation is retried.
func (s *Store) Append(ctx context.Context, turn *chat.Turn) error {
	if !turn.Role.Valid() {
		return chat.NewPersistenceError("append", fmt.Errorf("%w: %q", chat.ErrInvalidRole, turn.Role))
	}
	entity := newEntity(turn)

	var err error
	for attempt := 0; attempt < maxSeqAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var maxSeq int64
			row := tx.Model(&TurnEntity{}).
				Select("COALESCE(MAX(seq), 0)").
				Where("session_id = ?", entity.SessionID).
				Row()
			if err := row.Scan(&maxSeq); err != nil {
				return err
			}
			entity.Seq = maxSeq + 1
			return tx.Create(entity).Error
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return chat.NewPersistenceError("append", err)
	}

	turn.Seq = entity.Seq
	return nil
}

// ListBySession returns up to limit most recent turns of the session, oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]chat.Turn, error) {
	return s.listRecent(ctx, "session_id = ?", sessionID, limit, "list_by_session")
}

// ListByUser returns up to limit most recent turns of the user, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]chat.Turn, error) {
	return s.listRecent(ctx, "user_id = ?", userID, limit, "list_by_user")
}

func (s *Store) listRecent(ctx context.Context, where string, key string, limit int, op string) ([]chat.Turn, error) {
	query := s.db.WithContext(ctx).
		Where(where, key).
		Order("timestamp DESC").
		Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []TurnEntity
	if err := query.Find(&rows).Error; err != nil {
		return nil, chat.NewPersistenceError(op, err)
	}
	return toDomainReversed(rows), nil
}

// PageBySession returns one history page of the session.
func (s *Store) PageBySession(ctx context.Context, sessionID string, page, limit int) (chat.Page, error) {
	return s.page(ctx, "session_id = ?", sessionID, page, limit, "page_by_session")
}

// PageByUser returns one history page across the user's sessions.
func (s *Store) PageByUser(ctx context.Context, userID string, page, limit int) (chat.Page, error) {
	return s.page(ctx, "user_id = ?", userID, page, limit, "page_by_user")
}

func (s *Store) page(ctx context.Context, where string, key string, page, limit int, op string) (chat.Page, error) {
	result := chat.Page{Page: page, Limit: limit, Turns: []chat.Turn{}}

	if err := s.db.WithContext(ctx).Model(&TurnEntity{}).Where(where, key).Count(&result.Total).Error; err != nil {
		return chat.Page{}, chat.NewPersistenceError(op, err)
	}
	if page < 1 || limit < 1 || int64(page-1) >= (result.Total+int64(limit)-1)/int64(limit) {
		return result, nil
	}

	var rows []TurnEntity
	err := s.db.WithContext(ctx).
		Where(where, key).
		Order("timestamp DESC").
		Order("seq DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return chat.Page{}, chat.NewPersistenceError(op, err)
	}

	result.Turns = toDomainReversed(rows)
	return result, nil
}

// DeleteBySession removes every turn of the session and reports how many.
func (s *Store) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&TurnEntity{})
	if res.Error != nil {
		return 0, chat.NewPersistenceError("delete_by_session", res.Error)
	}
	return res.RowsAffected, nil
}

// StatsByUser aggregates turn and session counts and the mean AI latency.
func (s *Store) StatsByUser(ctx context.Context, userID string) (chat.UserStats, error) {
	var stats chat.UserStats

	row := s.db.WithContext(ctx).Model(&TurnEntity{}).
		Select("COUNT(*), COUNT(DISTINCT session_id)").
		Where("user_id = ?", userID).
		Row()
	if err := row.Scan(&stats.TotalTurns, &stats.TotalSessions); err != nil {
		return chat.UserStats{}, chat.NewPersistenceError("stats", err)
	}

	row = s.db.WithContext(ctx).Model(&TurnEntity{}).
		Select("COALESCE(AVG(latency_ms), 0)").
		Where("user_id = ? AND role = ?", userID, string(chat.RoleAI)).
		Row()
	if err := row.Scan(&stats.AverageResponseMs); err != nil {
		return chat.UserStats{}, chat.NewPersistenceError("stats", err)
	}
	return stats, nil
}

// Ping checks the connection pool.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return chat.NewPersistenceError("ping", err)
	}
	return chat.NewPersistenceError("ping", sqlDB.PingContext(ctx))
}
