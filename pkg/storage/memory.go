package storage

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"igdmbot/pkg/models"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	processed map[string]models.ProcessedComment
	order     []string
	sent      []models.SentMessage
	closed    bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{processed: make(map[string]models.ProcessedComment)}
}

func (m *MemoryStore) IsProcessed(_ context.Context, commentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.processed[commentID]
	return ok, nil
}

func (m *MemoryStore) RecordProcessed(_ context.Context, rec models.ProcessedComment) (bool, error) {
	if rec.CommentID == "" {
		return false, errors.New("storage: comment id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.processed[rec.CommentID]; ok {
		return false, nil
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	if rec.MatchedKeyword != nil {
		kw := *rec.MatchedKeyword
		rec.MatchedKeyword = &kw
	}
	m.processed[rec.CommentID] = rec
	m.order = append(m.order, rec.CommentID)
	return true, nil
}

func (m *MemoryStore) LogSentMessage(_ context.Context, msg models.SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *MemoryStore) RecentProcessed(_ context.Context, limit int) ([]models.ProcessedComment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]models.ProcessedComment, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.processed[m.order[i]])
	}
	slices.SortStableFunc(out, func(a, b models.ProcessedComment) int {
		return b.ProcessedAt.Compare(a.ProcessedAt)
	})
	if n := clampRecent(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) SentMessages(_ context.Context, commentID string) ([]models.SentMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []models.SentMessage
	for _, msg := range m.sent {
		if msg.CommentID == commentID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Stats{}, ErrClosed
	}

	counts := make(map[models.Action]int)
	for _, rec := range m.processed {
		counts[rec.Action]++
	}
	stats := Stats{TotalProcessed: len(m.processed)}
	for action, n := range counts {
		stats.ByAction = append(stats.ByAction, models.ActionCount{Action: action, Count: n})
	}
	slices.SortFunc(stats.ByAction, func(a, b models.ActionCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Action, b.Action)
	})

	for _, msg := range m.sent {
		if !msg.Success {
			stats.MessagesFailed++
			continue
		}
		stats.MessagesSent++
		switch msg.Kind {
		case models.MessageKindDirect:
			stats.DirectMessages++
		case models.MessageKindReply:
			stats.PublicReplies++
		}
	}
	return stats, nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
