package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

const peopleSchema = `
CREATE TABLE IF NOT EXISTS people (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	age INTEGER NOT NULL,
	profession TEXT NOT NULL
)`

const (
	defaultStoreDir = ".petalpeople"
	defaultStoreDB  = "people.db"
)

// BusyTimeoutMS is how long SQLite waits on another session's lock before
// reporting SQLITE_BUSY.
const BusyTimeoutMS = 5000

// ErrStoreUnavailable marks failures to open or bootstrap the backing store.
var ErrStoreUnavailable = errors.New("store unavailable")

// Config configures a Gateway.
type Config struct {
	// DSN is a SQLite file path or a "file:" URI.
	DSN    string
	Logger *slog.Logger
}

// Gateway hands out independent sessions against one fixed store location.
// It holds no connection of its own, so it is safe for concurrent use.
type Gateway struct {
	dsn    string
	logger *slog.Logger
}

// DefaultPath returns ~/.petalpeople/people.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "store: resolve user home")
	}
	return filepath.Join(home, defaultStoreDir, defaultStoreDB), nil
}

// New returns a gateway for the given location. No connection is opened
// until the first call to Open.
func New(cfg Config) (*Gateway, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("store: dsn is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{dsn: dsn, logger: logger}, nil
}

// DSN returns the configured store location.
func (g *Gateway) DSN() string {
	return g.dsn
}

// Open acquires a read-write session, creating the people table if needed.
func (g *Gateway) Open(ctx context.Context) (*Session, error) {
	return g.open(ctx, false)
}

// OpenReadOnly acquires a session on which the store refuses any statement
// that would modify the database.
func (g *Gateway) OpenReadOnly(ctx context.Context) (*Session, error) {
	return g.open(ctx, true)
}

// Ping verifies that a session can be opened and the people table read.
func (g *Gateway) Ping(ctx context.Context) error {
	session, err := g.OpenReadOnly(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if _, err := session.Query(ctx, "SELECT COUNT(*) FROM people"); err != nil {
		return errors.Mark(err, ErrStoreUnavailable)
	}
	return nil
}

func (g *Gateway) open(ctx context.Context, readOnly bool) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ensureParentDir(g.dsn); err != nil {
		return nil, unavailable(err, "store: create data directory")
	}

	db, err := sql.Open("sqlite", sessionDSN(g.dsn, readOnly))
	if err != nil {
		return nil, unavailable(err, "store: open")
	}
	db.SetMaxOpenConns(1)

	fail := func(err error, msg string) (*Session, error) {
		_ = db.Close()
		return nil, unavailable(err, msg)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fail(err, "store: set WAL mode")
	}
	if _, err := db.ExecContext(ctx, peopleSchema); err != nil {
		return fail(err, "store: create schema")
	}
	if readOnly {
		if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return fail(err, "store: enable query_only")
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err, "store: begin transaction")
	}

	g.logger.Debug("store session opened", slog.String("dsn", g.dsn), slog.Bool("read_only", readOnly))
	return &Session{db: db, tx: tx, readOnly: readOnly}, nil
}

// sessionDSN adds the per-connection driver settings: the busy timeout, and
// for write sessions a BEGIN IMMEDIATE so the write lock is taken up front
// rather than on a read-to-write upgrade that cannot wait.
func sessionDSN(dsn string, readOnly bool) string {
	params := fmt.Sprintf("_pragma=busy_timeout(%d)", BusyTimeoutMS)
	if !readOnly {
		params += "&_txlock=immediate"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params
}

func unavailable(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrStoreUnavailable)
}

// ensureParentDir creates the directory holding a plain file path. URIs and
// in-memory databases are left to the driver.
func ensureParentDir(dsn string) error {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "file:") || dsn == ":memory:" {
		return nil
	}
	path, _, _ := strings.Cut(dsn, "?")
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
