package svc

import (
	"context"
	"fmt"
	"kvpaste/cfg"
	"kvpaste/metrics"
	"kvpaste/pkg/domain"
	"kvpaste/svc/db"
	"kvpaste/svc/util"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var ErrShuttingDown = errors.New("service shutting down")

type Paste struct {
	store    db.Store
	cfg      *cfg.Cfg
	shutdown atomic.Bool
	opWg     sync.WaitGroup
}

func NewPaste(store db.Store, c *cfg.Cfg) *Paste {
	if store == nil || c == nil {
		panic("paste service: nil dependency (store or cfg)")
	}
	return &Paste{store: store, cfg: c}
}

// Upload stores content under a fresh id and returns the retrieval link.
// With SwallowWriteErrors set a failed write is logged and the link is
// returned anyway; Stored reports what actually happened.
func (p *Paste) Upload(ctx context.Context, content []byte) (*domain.Paste, error) {
	if p.shutdown.Load() {
		return nil, ErrShuttingDown
	}
	p.opWg.Add(1)
	defer p.opWg.Done()
	if int64(len(content)) > p.cfg.MaxPasteSize {
		return nil, domain.ErrPasteTooLarge
	}
	id := domain.NewPasteID(p.cfg.IDLength)
	paste := &domain.Paste{
		ID:        id,
		URL:       p.URLFor(id),
		Size:      len(content),
		CreatedAt: time.Now(),
		Stored:    true,
	}
	if err := p.store.Put(ctx, id, content); err != nil {
		if !p.cfg.SwallowWriteErrors {
			return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
		}
		util.Warn().
			Err(err).
			Str("paste_id", id.String()).
			Msg("store write failed, returning link anyway")
		metrics.SwallowedWrites.Inc()
		paste.Stored = false
	}
	metrics.PasteCreated.Inc()
	metrics.PasteSize.Observe(float64(len(content)))
	return paste, nil
}

// Retrieve returns domain.ErrPasteNotFound for a missing key and
// domain.ErrStore for any other store failure.
func (p *Paste) Retrieve(ctx context.Context, id domain.PasteID) (*domain.Paste, error) {
	if id.IsZero() {
		return nil, domain.ErrInvalidID
	}
	if p.shutdown.Load() {
		return nil, ErrShuttingDown
	}
	p.opWg.Add(1)
	defer p.opWg.Done()
	content, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			metrics.PasteMissed.WithLabelValues("not_found").Inc()
			return nil, errors.Wrap(domain.ErrPasteNotFound, id.String())
		}
		metrics.PasteMissed.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	metrics.PasteRetrieved.Inc()
	return &domain.Paste{
		ID:      id,
		URL:     p.URLFor(id),
		Content: content,
		Size:    len(content),
		Stored:  true,
	}, nil
}

func (p *Paste) URLFor(id domain.PasteID) string {
	return p.cfg.BaseURL() + "/" + id.String()
}

func (p *Paste) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

// Shutdown rejects new operations and waits for in-flight ones, up to timeout.
func (p *Paste) Shutdown(timeout time.Duration) {
	p.shutdown.Store(true)
	done := make(chan struct{})
	go func() {
		p.opWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		util.Debug().Msg("paste service shutdown complete")
	case <-time.After(timeout):
		util.Warn().Msg("paste operations didn't finish in time")
	}
}
