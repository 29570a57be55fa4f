// Package archive persists feed events to SQLite so history outlives the
// bounded in-memory store.
//
// Writes are asynchronous: Append enqueues and a single writer goroutine
// inserts in arrival order. Events are keyed by ID and re-appending an
// archived event is a no-op.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/agentstation/hitlfeed/pkg/constants"
	"github.com/agentstation/hitlfeed/pkg/errors"
	"github.com/agentstation/hitlfeed/pkg/events"
	"github.com/agentstation/hitlfeed/pkg/feed"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Query selects archived events. Zero values mean "no constraint", except
// Limit which defaults to constants.DefaultHistoryLimit.
type Query struct {
	Types []events.EventType
	Since time.Time
	Limit int
}

// Archive is an append-only SQLite event log.
type Archive struct {
	db      *sql.DB
	logger  *zerolog.Logger
	retry   func() backoff.BackOff
	queue   chan events.SystemEvent
	done    chan struct{}
	pending atomic.Int64
	dropped atomic.Uint64
	written atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the archive's logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *Archive) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithQueueSize sets how many events may wait for the writer before Append drops.
func WithQueueSize(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.queue = make(chan events.SystemEvent, n)
		}
	}
}

// WithRetry sets the backoff policy for failed inserts.
func WithRetry(factory func() backoff.BackOff) Option {
	return func(a *Archive) {
		if factory != nil {
			a.retry = factory
		}
	}
}

func defaultRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return b
}

// Open opens or creates the archive at path and starts its writer.
// A leading "~" is expanded to the user's home directory.
func Open(ctx context.Context, path string, opts ...Option) (*Archive, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), constants.DirPermissions); err != nil {
		return nil, errors.WrapIO("create", filepath.Dir(resolved), err)
	}

	db, err := openDB("sqlite", resolved)
	if err != nil {
		return nil, errors.WrapResource("open", "archive", resolved, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("archive: pragma %q: %w", p, err)
		}
	}

	nop := zerolog.Nop()
	a := &Archive{
		db:     db,
		logger: &nop,
		retry:  defaultRetry,
		queue:  make(chan events.SystemEvent, constants.ChannelBufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: migration: %w", err)
	}

	go a.writer()

	a.logger.Debug().Str("path", resolved).Msg("Archive opened")
	return a, nil
}

func (a *Archive) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT    NOT NULL UNIQUE,
			type        TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			data        TEXT    NOT NULL,
			received_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	`
	_, err := a.db.ExecContext(ctx, schema)
	return err
}

// Append enqueues e for writing. It never blocks; when the queue is full or
// the archive is closed the event is dropped and false returned.
func (a *Archive) Append(e events.SystemEvent) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	a.pending.Add(1)
	select {
	case a.queue <- e:
		return true
	default:
		a.pending.Add(-1)
		a.dropped.Add(1)
		a.logger.Warn().Str("event_id", e.ID).Msg("Archive queue full, event dropped")
		return false
	}
}

// Attach archives every event added to store until the returned function is called.
func (a *Archive) Attach(store *feed.Store) (detach func()) {
	return store.Subscribe(func(c feed.Change) {
		if c.Kind == feed.EventAdded {
			a.Append(c.Event)
		}
	})
}

func (a *Archive) writer() {
	defer close(a.done)
	for e := range a.queue {
		if err := a.Insert(context.Background(), e); err != nil {
			a.logger.Error().Err(err).Str("event_id", e.ID).Msg("Failed to archive event")
		}
		a.pending.Add(-1)
	}
}

// Insert writes e synchronously, retrying transient failures.
func (a *Archive) Insert(ctx context.Context, e events.SystemEvent) error {
	data := e.Data
	if data == nil {
		data = events.Data{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.WrapParse("json", e.ID, err)
	}

	op := func() error {
		res, err := a.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO events (id, type, ts, data, received_at) VALUES (?, ?, ?, ?, ?)`,
			e.ID, string(e.Type), e.Timestamp.UnixNano(), string(payload), time.Now().UnixNano(),
		)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			a.written.Add(1)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(a.retry(), ctx))
}

// Query returns matching events oldest first. When more than Limit events
// match, the most recent Limit are returned.
func (a *Archive) Query(ctx context.Context, q Query) ([]events.SystemEvent, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	if limit > constants.MaxHistoryLimit {
		limit = constants.MaxHistoryLimit
	}

	var (
		where []string
		args  []any
	)
	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}

	inner := "SELECT seq, id, type, ts, data FROM events"
	if len(where) > 0 {
		inner += " WHERE " + strings.Join(where, " AND ")
	}
	inner += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, "SELECT id, type, ts, data FROM ("+inner+") ORDER BY seq ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []events.SystemEvent
	for rows.Next() {
		var (
			id, typ, raw string
			ts           int64
		)
		if err := rows.Scan(&id, &typ, &ts, &raw); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		data := events.Data{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			a.logger.Warn().Err(err).Str("event_id", id).Msg("Archived payload unreadable")
		}
		out = append(out, events.SystemEvent{
			ID:        id,
			Type:      events.EventType(typ),
			Timestamp: time.Unix(0, ts).UTC(),
			Data:      data,
		})
	}
	return out, rows.Err()
}

// Count returns the number of archived events.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return n, nil
}

// Dropped returns how many events Append could not enqueue.
func (a *Archive) Dropped() uint64 {
	return a.dropped.Load()
}

// Written returns how many events the archive has stored since Open.
func (a *Archive) Written() uint64 {
	return a.written.Load()
}

// Flush blocks until every event enqueued before the call has been written,
// or ctx is done.
func (a *Archive) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for a.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting events, waits for queued ones to be written and
// closes the database. It is safe to call more than once.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.db.Close()
}

func expandHome(path string) (string, error) {
	if path == "" {
		return "", &errors.ValidationError{Field: "archive path", Message: "must not be empty"}
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.WrapIO("resolve", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
