package db

import (
	"context"
	"database/sql"
	"kvpaste/pkg/domain"
	"kvpaste/svc/util"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteBackend = "sqlite"

type SQLite struct {
	dsn     string
	shared  *sql.DB
	timeout time.Duration
	prefix  string
}

func NewSQLite(rawURL string, o Options) (*SQLite, error) {
	path := strings.TrimPrefix(rawURL, "sqlite://")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return nil, errors.New("sqlite url has no path")
	}
	if strings.Contains(path, ":memory:") && !o.Pool {
		return nil, errors.New("in-memory sqlite requires STORE_POOL=true")
	}
	s := &SQLite{
		dsn:     path + "?_busy_timeout=5000&_journal_mode=WAL",
		timeout: o.Timeout,
		prefix:  o.KeyPrefix,
	}
	db, err := sql.Open("sqlite3", s.dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	if o.Pool {
		db.SetMaxOpenConns(1)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	if o.Pool {
		s.shared = db
		return s, nil
	}
	if err := db.Close(); err != nil {
		return nil, errors.Wrap(err, "close db")
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		content BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`)
	return err
}

func (s *SQLite) conn() (*sql.DB, func(), error) {
	if s.shared != nil {
		return s.shared, func() {}, nil
	}
	db, err := sql.Open("sqlite3", s.dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	return db, func() {
		if err := db.Close(); err != nil {
			util.Debug().Err(err).Msg("sqlite close")
		}
	}, nil
}

func (s *SQLite) Put(ctx context.Context, id domain.PasteID, value []byte) (err error) {
	start := time.Now()
	defer func() { observe(sqliteBackend, "set", start, err) }()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	db, release, err := s.conn()
	if err != nil {
		return storeErr(sqliteBackend, "open", err)
	}
	defer release()
	if value == nil {
		value = []byte{}
	}
	_, err = db.ExecContext(ctx, `
	INSERT INTO pastes (id, content, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at
	`, s.prefix+id.String(), value, time.Now().UTC())
	return storeErr(sqliteBackend, "set", err)
}

func (s *SQLite) Get(ctx context.Context, id domain.PasteID) (value []byte, err error) {
	start := time.Now()
	defer func() { observe(sqliteBackend, "get", start, err) }()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	db, release, err := s.conn()
	if err != nil {
		return nil, storeErr(sqliteBackend, "open", err)
	}
	defer release()
	err = db.QueryRowContext(ctx, `SELECT content FROM pastes WHERE id = ?`, s.prefix+id.String()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "sqlite get %s", id)
	}
	if err != nil {
		return nil, storeErr(sqliteBackend, "get", err)
	}
	return value, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	db, release, err := s.conn()
	if err != nil {
		return storeErr(sqliteBackend, "open", err)
	}
	defer release()
	var one int
	return storeErr(sqliteBackend, "ping", db.QueryRowContext(ctx, "SELECT 1").Scan(&one))
}

func (s *SQLite) Close() error {
	if s.shared != nil {
		return s.shared.Close()
	}
	return nil
}
