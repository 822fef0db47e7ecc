package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists chat turns. Implementations return turns of a session
// ordered oldest to newest by (Timestamp, Seq).
type Store interface {
	Append(ctx context.Context, turn *Turn) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Turn, error)
	PageBySession(ctx context.Context, sessionID string, page, limit int) (Page, error)
	PageByUser(ctx context.Context, userID string, page, limit int) (Page, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	StatsByUser(ctx context.Context, userID string) (UserStats, error)
	Ping(ctx context.Context) error
}

// Page is one window of history. Page 1 holds the newest turns; Turns is
// always ordered oldest to newest.
type Page struct {
	Turns []Turn
	Page  int
	Limit int
	Total int64
}

// TotalPages returns the number of pages for the page size.
func (p Page) TotalPages() int {
	if p.Limit <= 0 || p.Total == 0 {
		return 0
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

// PageBounds returns the [start,end) slice bounds for page over total items
// ordered oldest to newest, where page 1 is the newest window.
func PageBounds(total, page, limit int) (int, int) {
	if page < 1 || limit < 1 || total < 1 {
		return 0, 0
	}
	// page-1 is checked before multiplying so huge pages cannot wrap.
	if page-1 >= (total+limit-1)/limit {
		return 0, 0
	}
	end := total - (page-1)*limit
	if end <= 0 {
		return 0, 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return start, end
}

// MemoryStore implements Store in process memory. It backs local runs without
// a database and the handler tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	seq      map[string]int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Turn),
		seq:      make(map[string]int64),
	}
}

// Append stores turn and assigns its per-session sequence number.
func (s *MemoryStore) Append(_ context.Context, turn *Turn) error {
	if !turn.Role.Valid() {
		return NewPersistenceError("append", fmt.Errorf("%w: %q", ErrInvalidRole, turn.Role))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[turn.SessionID]++
	turn.Seq = s.seq[turn.SessionID]
	s.sessions[turn.SessionID] = append(s.sessions[turn.SessionID], *turn)
	return nil
}

// ListBySession returns up to limit most recent turns of the session.
func (s *MemoryStore) ListBySession(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	turns := sortedCopy(s.sessions[sessionID])
	s.mu.RUnlock()
	return tail(turns, limit), nil
}

// ListByUser returns up to limit most recent turns of the user across sessions.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	turns := s.userTurns(userID)
	s.mu.RUnlock()
	return tail(turns, limit), nil
}

// PageBySession returns one history page of the session.
func (s *MemoryStore) PageBySession(_ context.Context, sessionID string, page, limit int) (Page, error) {
	s.mu.RLock()
	turns := sortedCopy(s.sessions[sessionID])
	s.mu.RUnlock()
	return paginate(turns, page, limit), nil
}

// PageByUser returns one history page across the user's sessions.
func (s *MemoryStore) PageByUser(_ context.Context, userID string, page, limit int) (Page, error) {
	s.mu.RLock()
	turns := s.userTurns(userID)
	s.mu.RUnlock()
	return paginate(turns, page, limit), nil
}

// DeleteBySession drops every turn of the session.
func (s *MemoryStore) DeleteBySession(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(len(s.sessions[sessionID]))
	delete(s.sessions, sessionID)
	return deleted, nil
}

// StatsByUser aggregates the user's turns.
func (s *MemoryStore) StatsByUser(_ context.Context, userID string) (UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats UserStats
	var latencyTotal, aiTurns int64
	for _, turns := range s.sessions {
		owned := false
		for _, turn := range turns {
			if turn.UserID != userID {
				continue
			}
			owned = true
			stats.TotalTurns++
			if turn.Role == RoleAI {
				aiTurns++
				latencyTotal += turn.LatencyMs
			}
		}
		if owned {
			stats.TotalSessions++
		}
	}
	if aiTurns > 0 {
		stats.AverageResponseMs = float64(latencyTotal) / float64(aiTurns)
	}
	return stats, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) userTurns(userID string) []Turn {
	var turns []Turn
	for _, session := range s.sessions {
		for _, turn := range session {
			if turn.UserID == userID {
				turns = append(turns, turn)
			}
		}
	}
	SortTurns(turns)
	return turns
}

// SortTurns orders turns oldest first, breaking timestamp ties by Seq.
func SortTurns(turns []Turn) {
	sort.SliceStable(turns, func(i, j int) bool {
		if turns[i].Timestamp.Equal(turns[j].Timestamp) {
			return turns[i].Seq < turns[j].Seq
		}
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
}

func sortedCopy(turns []Turn) []Turn {
	copied := make([]Turn, len(turns))
	copy(copied, turns)
	SortTurns(copied)
	return copied
}

func tail(turns []Turn, limit int) []Turn {
	if limit > 0 && len(turns) > limit {
		return turns[len(turns)-limit:]
	}
	return turns
}

func paginate(turns []Turn, page, limit int) Page {
	start, end := PageBounds(len(turns), page, limit)
	return Page{
		Turns: append([]Turn{}, turns[start:end]...),
		Page:  page,
		Limit: limit,
		Total: int64(len(turns)),
	}
}
