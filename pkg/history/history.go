// Package history keeps an append only SQLite log of published threads
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/automation"
	_ "modernc.org/sqlite"
)

const DefaultLimit = 10

const schema = `
CREATE TABLE IF NOT EXISTS thread (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	main_id     TEXT NOT NULL,
	tweet_count INTEGER NOT NULL,
	media_count INTEGER NOT NULL,
	posted_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tweet (
	thread_id INTEGER NOT NULL REFERENCES thread(id),
	position  INTEGER NOT NULL,
	tweet_id  TEXT NOT NULL,
	text      TEXT NOT NULL,
	PRIMARY KEY (thread_id, position)
);
CREATE INDEX IF NOT EXISTS idx_thread_posted_at ON thread(posted_at);
`

// Entry is one recorded thread
type Entry struct {
	MainTweetID string    `json:"mainTweetId"`
	TweetIDs    []string  `json:"tweetIds"`
	FirstText   string    `json:"content"`
	TweetCount  int       `json:"totalTweets"`
	MediaCount  int       `json:"mediaCount"`
	PostedAt    time.Time `json:"postedAt"`
}

// Store is safe for concurrent use
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

var _ automation.HistoryRecorder = (*Store)(nil)

// Open opens (creating if needed) the database at path.
// ":memory:" gives a throwaway in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}
	logger.Info("Post history initialized", path)
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordThread stores a published thread in a single transaction
func (s *Store) RecordThread(ctx context.Context, posts []automation.PostedTweet, mediaCount int) error {
	if len(posts) == 0 {
		return fmt.Errorf("nothing to record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO thread (main_id, tweet_count, media_count, posted_at) VALUES (?, ?, ?, ?)`,
		posts[0].ID, len(posts), mediaCount, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}
	threadID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read thread id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tweet (thread_id, position, tweet_id, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tweet insert: %w", err)
	}
	defer stmt.Close()
	for i, p := range posts {
		if _, err := stmt.ExecContext(ctx, threadID, i, p.ID, p.Text); err != nil {
			return fmt.Errorf("failed to insert tweet %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thread: %w", err)
	}
	logger.Debug(fmt.Sprintf("Recorded thread %s (%d tweets)", posts[0].ID, len(posts)))
	return nil
}

// Recent returns up to limit threads, newest first. limit <= 0 means DefaultLimit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, main_id, tweet_count, media_count, posted_at
		FROM thread
		ORDER BY posted_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query post history: %w", err)
	}

	var ids []int64
	var out []Entry
	for rows.Next() {
		var id, ms int64
		var e Entry
		if err := rows.Scan(&id, &e.MainTweetID, &e.TweetCount, &e.MediaCount, &ms); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan post history: %w", err)
		}
		e.PostedAt = time.UnixMilli(ms).UTC()
		ids = append(ids, id)
		out = append(out, e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read post history: %w", err)
	}

	for i, id := range ids {
		if err := s.loadTweets(ctx, id, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadTweets(ctx context.Context, threadID int64, e *Entry) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, tweet_id, text FROM tweet WHERE thread_id = ? ORDER BY position`, threadID)
	if err != nil {
		return fmt.Errorf("failed to query tweets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pos int
		var id, text string
		if err := rows.Scan(&pos, &id, &text); err != nil {
			return fmt.Errorf("failed to scan tweet: %w", err)
		}
		if pos == 0 {
			e.FirstText = text
		}
		e.TweetIDs = append(e.TweetIDs, id)
	}
	return rows.Err()
}
