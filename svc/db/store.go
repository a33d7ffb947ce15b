package db

import (
	"context"
	"fmt"
	"kvpaste/metrics"
	"kvpaste/pkg/domain"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

// Store is the key-value contract used by the paste service. Put overwrites
// unconditionally. Get returns ErrNotFound for a missing key and a *StoreError
// for everything else. Implementations never retry.
type Store interface {
	Put(ctx context.Context, id domain.PasteID, value []byte) error
	Get(ctx context.Context, id domain.PasteID) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}
func (e *StoreError) Unwrap() error { return e.Err }

type Options struct {
	Timeout   time.Duration
	Pool      bool
	Username  string
	Password  string
	KeyPrefix string
}

const defaultTimeout = 5 * time.Second

func Open(rawURL string, opts Options) (Store, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse store url")
	}
	switch u.Scheme {
	case "redis", "rediss", "unix":
		return NewRedis(rawURL, opts)
	case "sqlite":
		return NewSQLite(rawURL, opts)
	case "mem":
		return NewMemory(opts.KeyPrefix), nil
	default:
		return nil, errors.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

func storeErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Backend: backend, Op: op, Err: err}
}

func observe(backend, op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "miss"
	default:
		result = "error"
	}
	metrics.StoreOps.WithLabelValues(backend, op, result).Inc()
	metrics.StoreDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
