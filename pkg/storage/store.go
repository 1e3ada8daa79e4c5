package storage

import (
	"context"
	"errors"

	"igdmbot/pkg/models"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("storage: store is closed")

// Store is the durable log used by the dispatcher and the admin surfaces.
type Store interface {
	// IsProcessed reports whether a record exists for commentID.
	IsProcessed(ctx context.Context, commentID string) (bool, error)
	// RecordProcessed inserts rec unless a record for the same comment id
	// already exists. inserted is false when another writer got there first.
	RecordProcessed(ctx context.Context, rec models.ProcessedComment) (inserted bool, err error)
	// LogSentMessage appends one outbound attempt. An empty ID is filled in.
	LogSentMessage(ctx context.Context, msg models.SentMessage) error
	// RecentProcessed returns the newest records first.
	RecentProcessed(ctx context.Context, limit int) ([]models.ProcessedComment, error)
	// SentMessages returns the attempts for one comment, oldest first.
	SentMessages(ctx context.Context, commentID string) ([]models.SentMessage, error)
	// Stats aggregates both tables.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats is the aggregate view served by the stats command and admin API.
type Stats struct {
	TotalProcessed int                  `json:"total_processed"`
	ByAction       []models.ActionCount `json:"by_action"`
	MessagesSent   int                  `json:"messages_sent"`
	MessagesFailed int                  `json:"messages_failed"`
	DirectMessages int                  `json:"direct_messages"`
	PublicReplies  int                  `json:"public_replies"`
}

// DefaultRecentLimit bounds RecentProcessed when the caller passes <= 0.
const DefaultRecentLimit = 20

// MaxRecentLimit is the largest page RecentProcessed returns.
const MaxRecentLimit = 500

func clampRecent(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
