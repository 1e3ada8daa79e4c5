package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"igdmbot/pkg/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// timeLayout keeps lexical and chronological order identical.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists the log in a single SQLite file.
type SQLiteStore struct {
	db     *sqlx.DB
	path   string
	closed atomic.Bool
}

var _ Store = (*SQLiteStore)(nil)

type processedRow struct {
	CommentID      string         `db:"comment_id"`
	PostID         string         `db:"post_id"`
	AuthorID       string         `db:"author_id"`
	AuthorUsername string         `db:"author_username"`
	Text           string         `db:"text"`
	MatchedKeyword sql.NullString `db:"matched_keyword"`
	Action         string         `db:"action"`
	ProcessedAt    string         `db:"processed_at"`
}

type sentRow struct {
	ID                string `db:"id"`
	CommentID         string `db:"comment_id"`
	RecipientID       string `db:"recipient_id"`
	RecipientUsername string `db:"recipient_username"`
	Kind              string `db:"kind"`
	Text              string `db:"text"`
	Success           bool   `db:"success"`
	Error             string `db:"error"`
	SentAt            string `db:"sent_at"`
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("storage: database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the database. It is safe on a nil store and idempotent.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) IsProcessed(ctx context.Context, commentID string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(1) FROM processed_comments WHERE comment_id = ?", commentID); err != nil {
		return false, fmt.Errorf("check processed %s: %w", commentID, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) RecordProcessed(ctx context.Context, rec models.ProcessedComment) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	if rec.CommentID == "" {
		return false, errors.New("storage: comment id is required")
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	row := processedRow{
		CommentID:      rec.CommentID,
		PostID:         rec.PostID,
		AuthorID:       rec.AuthorID,
		AuthorUsername: rec.AuthorUsername,
		Text:           rec.Text,
		Action:         string(rec.Action),
		ProcessedAt:    formatTime(rec.ProcessedAt),
	}
	if rec.MatchedKeyword != nil {
		row.MatchedKeyword = sql.NullString{String: *rec.MatchedKeyword, Valid: true}
	}

	const query = `INSERT INTO processed_comments
		(comment_id, post_id, author_id, author_username, text, matched_keyword, action, processed_at)
		VALUES (:comment_id, :post_id, :author_id, :author_username, :text, :matched_keyword, :action, :processed_at)
		ON CONFLICT(comment_id) DO NOTHING`

	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.NamedExecContext(ctx, query, row)
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("record processed %s: %w", rec.CommentID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record processed %s: %w", rec.CommentID, err)
	}
	return affected > 0, nil
}

func (s *SQLiteStore) LogSentMessage(ctx context.Context, msg models.SentMessage) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	row := sentRow{
		ID:                msg.ID,
		CommentID:         msg.CommentID,
		RecipientID:       msg.RecipientID,
		RecipientUsername: msg.RecipientUsername,
		Kind:              string(msg.Kind),
		Text:              msg.Text,
		Success:           msg.Success,
		Error:             msg.Error,
		SentAt:            formatTime(msg.SentAt),
	}

	const query = `INSERT INTO sent_messages
		(id, comment_id, recipient_id, recipient_username, kind, text, success, error, sent_at)
		VALUES (:id, :comment_id, :recipient_id, :recipient_username, :kind, :text, :success, :error, :sent_at)`

	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.NamedExecContext(ctx, query, row)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("log sent message for %s: %w", msg.CommentID, err)
	}
	return nil
}

func (s *SQLiteStore) RecentProcessed(ctx context.Context, limit int) ([]models.ProcessedComment, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var rows []processedRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM processed_comments ORDER BY processed_at DESC, comment_id DESC LIMIT ?", clampRecent(limit))
	if err != nil {
		return nil, fmt.Errorf("list processed comments: %w", err)
	}

	out := make([]models.ProcessedComment, 0, len(rows))
	for _, row := range rows {
		rec, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLiteStore) SentMessages(ctx context.Context, commentID string) ([]models.SentMessage, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var rows []sentRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM sent_messages WHERE comment_id = ? ORDER BY sent_at ASC, rowid ASC", commentID)
	if err != nil {
		return nil, fmt.Errorf("list sent messages for %s: %w", commentID, err)
	}

	out := make([]models.SentMessage, 0, len(rows))
	for _, row := range rows {
		msg, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrClosed
	}
	var stats Stats
	if err := s.db.SelectContext(ctx, &stats.ByAction,
		"SELECT action, COUNT(1) AS count FROM processed_comments GROUP BY action ORDER BY count DESC, action ASC"); err != nil {
		return Stats{}, fmt.Errorf("count actions: %w", err)
	}
	for _, ac := range stats.ByAction {
		stats.TotalProcessed += ac.Count
	}

	var agg struct {
		Sent    sql.NullInt64 `db:"sent"`
		Failed  sql.NullInt64 `db:"failed"`
		Direct  sql.NullInt64 `db:"direct"`
		Replies sql.NullInt64 `db:"replies"`
	}
	err := s.db.GetContext(ctx, &agg, `SELECT
		SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) AS sent,
		SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) AS failed,
		SUM(CASE WHEN success = 1 AND kind = ? THEN 1 ELSE 0 END) AS direct,
		SUM(CASE WHEN success = 1 AND kind = ? THEN 1 ELSE 0 END) AS replies
		FROM sent_messages`, string(models.MessageKindDirect), string(models.MessageKindReply))
	if err != nil {
		return Stats{}, fmt.Errorf("count sent messages: %w", err)
	}
	stats.MessagesSent = int(agg.Sent.Int64)
	stats.MessagesFailed = int(agg.Failed.Int64)
	stats.DirectMessages = int(agg.Direct.Int64)
	stats.PublicReplies = int(agg.Replies.Int64)
	return stats, nil
}

func (r processedRow) model() (models.ProcessedComment, error) {
	at, err := parseTime(r.ProcessedAt)
	if err != nil {
		return models.ProcessedComment{}, fmt.Errorf("parse processed_at for %s: %w", r.CommentID, err)
	}
	rec := models.ProcessedComment{
		CommentID:      r.CommentID,
		PostID:         r.PostID,
		AuthorID:       r.AuthorID,
		AuthorUsername: r.AuthorUsername,
		Text:           r.Text,
		Action:         models.Action(r.Action),
		ProcessedAt:    at,
	}
	if r.MatchedKeyword.Valid {
		kw := r.MatchedKeyword.String
		rec.MatchedKeyword = &kw
	}
	return rec, nil
}

func (r sentRow) model() (models.SentMessage, error) {
	at, err := parseTime(r.SentAt)
	if err != nil {
		return models.SentMessage{}, fmt.Errorf("parse sent_at for %s: %w", r.ID, err)
	}
	return models.SentMessage{
		ID:                r.ID,
		CommentID:         r.CommentID,
		RecipientID:       r.RecipientID,
		RecipientUsername: r.RecipientUsername,
		Kind:              models.MessageKind(r.Kind),
		Text:              r.Text,
		Success:           r.Success,
		Error:             r.Error,
		SentAt:            at,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return migrations, nil
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := tx.GetContext(ctx, &count, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy retries op while another process holds the write lock.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
