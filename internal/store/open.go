package store

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "signalbot/pkg/logx"
)

// Store is the persistence API used by the registry, dispatcher and outbox.
//
// Load methods never fail: missing or corrupt data degrades to an empty
// collection. Update methods run the mutation func under the collection's
// lock for the whole read-modify-write span; the func returns the new value
// and whether anything changed.
type Store interface {
	Channels(ctx context.Context) []string
	UpdateChannels(ctx context.Context, fn func(channels []string) ([]string, bool)) error

	Posts(ctx context.Context) []LedgerEntry
	AppendPost(ctx context.Context, e LedgerEntry) error

	Outbox(ctx context.Context) []OutboxEntry
	AppendOutbox(ctx context.Context, e OutboxEntry) error
	UpdateOutbox(ctx context.Context, fn func(entries []OutboxEntry) ([]OutboxEntry, bool)) error

	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": one JSON document per collection under Path (a directory)
//   - "sqlite": a SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
