package httpbridge

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Dedup tracks which webhook delivery keys have already been processed,
// persisting the processed set so a restart does not replay recent
// deliveries. An in-memory inflight set (not persisted: a crash mid-flight
// should allow the platform's retry through) prevents two concurrent
// deliveries of the same key from both running.
type Dedup struct {
	db  *sql.DB
	ttl time.Duration

	mu       sync.Mutex
	inflight map[string]bool
}

// NewDedup opens (creating if absent) a sqlite database at path and
// ensures its schema exists.
func NewDedup(path string, ttl time.Duration) (*Dedup, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("httpbridge: open dedup store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS processed (
		key TEXT PRIMARY KEY,
		processed_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("httpbridge: create dedup schema: %w", err)
	}
	return &Dedup{db: db, ttl: ttl, inflight: make(map[string]bool)}, nil
}

func (d *Dedup) Close() error {
	return d.db.Close()
}

// TryBegin reports whether key should be processed now: false if it is
// currently inflight or was processed within the TTL window. On true, the
// key is marked inflight until MarkDone or MarkFailed releases it.
func (d *Dedup) TryBegin(key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inflight[key] {
		return false, nil
	}

	var processedAt int64
	err := d.db.QueryRow(`SELECT processed_at FROM processed WHERE key = ?`, key).Scan(&processedAt)
	if err == nil {
		if time.Since(time.Unix(processedAt, 0)) < d.ttl {
			return false, nil
		}
	} else if err != sql.ErrNoRows {
		return false, fmt.Errorf("httpbridge: dedup lookup: %w", err)
	}

	d.inflight[key] = true
	return true, nil
}

// MarkDone records key as processed and releases it from the inflight set.
func (d *Dedup) MarkDone(key string) error {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()

	_, err := d.db.Exec(`INSERT INTO processed (key, processed_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET processed_at = excluded.processed_at`, key, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("httpbridge: dedup mark done: %w", err)
	}
	return nil
}

// MarkFailed releases key from the inflight set without recording it as
// processed, so the platform's retry can run it again.
func (d *Dedup) MarkFailed(key string) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}
