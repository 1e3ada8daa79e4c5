package models

import "time"

// Post is a piece of media on the monitored account.
type Post struct {
	ID           string    `json:"id"`
	Code         string    `json:"code,omitempty"`
	Caption      string    `json:"caption,omitempty"`
	Permalink    string    `json:"permalink,omitempty"`
	TakenAt      time.Time `json:"taken_at"`
	CommentCount int       `json:"comment_count"`
}

// Comment is an immutable comment as received from polling or a webhook.
type Comment struct {
	ID             string    `json:"id"`
	PostID         string    `json:"post_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// Action is the outcome recorded for a processed comment.
type Action string

const (
	ActionDirectDMSentWithConsent Action = "direct_dm_sent_with_consent"
	ActionDirectDMSentAnyKeyword  Action = "direct_dm_sent_any_keyword"
	ActionEncouragedToDM          Action = "encouraged_to_dm"
	ActionEncourageReplyFailed    Action = "encourage_reply_failed"
	ActionCommentReplyFallback    Action = "comment_reply_fallback"
	ActionDirectDMFailed          Action = "direct_dm_failed"
	ActionDirectDMRateCapped      Action = "direct_dm_rate_capped"
	ActionNoKeywordMatch          Action = "no_keyword_match"
	ActionPostNotMonitored        Action = "post_not_monitored"
)

// Failed reports whether the action means no outbound message reached the
// commenter.
func (a Action) Failed() bool {
	switch a {
	case ActionEncourageReplyFailed, ActionDirectDMFailed, ActionDirectDMRateCapped:
		return true
	default:
		return false
	}
}

// ProcessedComment is the append-only dedup record, one per comment id.
type ProcessedComment struct {
	CommentID      string    `json:"comment_id"`
	PostID         string    `json:"post_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Text           string    `json:"text"`
	MatchedKeyword *string   `json:"matched_keyword,omitempty"`
	Action         Action    `json:"action"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// Keyword returns the matched keyword or "".
func (p ProcessedComment) Keyword() string {
	if p.MatchedKeyword == nil {
		return ""
	}
	return *p.MatchedKeyword
}

// MessageKind distinguishes private messages from public comment replies.
type MessageKind string

const (
	MessageKindDirect MessageKind = "direct_message"
	MessageKindReply  MessageKind = "public_reply"
)

// SentMessage is an audit row for one outbound attempt.
type SentMessage struct {
	ID                string      `json:"id"`
	CommentID         string      `json:"comment_id"`
	RecipientID       string      `json:"recipient_id"`
	RecipientUsername string      `json:"recipient_username"`
	Kind              MessageKind `json:"kind"`
	Text              string      `json:"text"`
	Success           bool        `json:"success"`
	Error             string      `json:"error,omitempty"`
	SentAt            time.Time   `json:"sent_at"`
}

// ActionCount is an aggregate of processed comments per action.
type ActionCount struct {
	Action Action `json:"action" db:"action"`
	Count  int    `json:"count" db:"count"`
}
