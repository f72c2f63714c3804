package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "signalbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps each collection in its own table. Records are stored as
// JSON bodies (format-compatible with the file driver) with status/send_at
// denormalized on the outbox for inspection with plain SQL.
//
// SQLite with a single connection gives the same serialization guarantee the
// file driver gets from its mutex: update funcs run inside a transaction.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Channels(ctx context.Context) []string {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM channels ORDER BY position`)
	if err != nil {
		s.log.Warn("store read failed; treating as empty", logx.String("collection", "channels"), logx.Err(err))
		return nil
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (s *sqliteStore) UpdateChannels(ctx context.Context, fn func([]string) ([]string, bool)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: channels tx: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var cur []string
	rows, err := tx.QueryContext(ctx, `SELECT id FROM channels ORDER BY position`)
	if err == nil {
		for rows.Next() {
			var id string
			if rows.Scan(&id) == nil {
				cur = append(cur, id)
			}
		}
		rows.Close()
	}

	next, changed := fn(cur)
	if !changed {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels`); err != nil {
		return fmt.Errorf("%w: channels clear: %v", ErrUnavailable, err)
	}
	for _, id := range next {
		if _, err := tx.ExecContext(ctx, `INSERT INTO channels(id) VALUES(?)`, id); err != nil {
			return fmt.Errorf("%w: channels insert: %v", ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: channels commit: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) Posts(ctx context.Context) []LedgerEntry {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM posts ORDER BY seq`)
	if err != nil {
		s.log.Warn("store read failed; treating as empty", logx.String("collection", "posts"), logx.Err(err))
		return nil
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var body []byte
		if rows.Scan(&body) != nil {
			continue
		}
		var e LedgerEntry
		if err := json.Unmarshal(body, &e); err != nil {
			s.log.Warn("ledger row corrupt; skipping", logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *sqliteStore) AppendPost(ctx context.Context, e LedgerEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encode post: %v", ErrUnavailable, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO posts(at, body) VALUES(?, ?)`,
		e.Time.UTC().Format(time.RFC3339Nano), body,
	)
	if err != nil {
		return fmt.Errorf("%w: append post: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) Outbox(ctx context.Context) []OutboxEntry {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM outbox ORDER BY seq`)
	if err != nil {
		s.log.Warn("store read failed; treating as empty", logx.String("collection", "outbox"), logx.Err(err))
		return nil
	}
	defer rows.Close()
	var out []OutboxEntry
	for rows.Next() {
		var body []byte
		if rows.Scan(&body) != nil {
			continue
		}
		var e OutboxEntry
		if err := json.Unmarshal(body, &e); err != nil {
			s.log.Warn("outbox row corrupt; skipping", logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *sqliteStore) AppendOutbox(ctx context.Context, e OutboxEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encode outbox entry: %v", ErrUnavailable, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outbox(id, status, send_at, body) VALUES(?,?,?,?)`,
		e.ID, string(e.Status), e.SendAt.UTC().Format(time.RFC3339Nano), body,
	)
	if err != nil {
		return fmt.Errorf("%w: append outbox entry: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) UpdateOutbox(ctx context.Context, fn func([]OutboxEntry) ([]OutboxEntry, bool)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: outbox tx: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var cur []OutboxEntry
	rows, err := tx.QueryContext(ctx, `SELECT body FROM outbox ORDER BY seq`)
	if err == nil {
		for rows.Next() {
			var body []byte
			if rows.Scan(&body) != nil {
				continue
			}
			var e OutboxEntry
			if json.Unmarshal(body, &e) == nil {
				cur = append(cur, e)
			}
		}
		rows.Close()
	}

	next, changed := fn(cur)
	if !changed {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox`); err != nil {
		return fmt.Errorf("%w: outbox clear: %v", ErrUnavailable, err)
	}
	for _, e := range next {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("%w: encode outbox entry: %v", ErrUnavailable, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outbox(id, status, send_at, body) VALUES(?,?,?,?)`,
			e.ID, string(e.Status), e.SendAt.UTC().Format(time.RFC3339Nano), body,
		); err != nil {
			return fmt.Errorf("%w: outbox insert: %v", ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: outbox commit: %v", ErrUnavailable, err)
	}
	return nil
}
