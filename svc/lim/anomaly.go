package lim

import (
	"kvpaste/metrics"
	"kvpaste/svc/util"
	"sync"
	"sync/atomic"
	"time"
)

type WindowCfg struct {
	Buckets     int
	Interval    time.Duration
	MinRequests int64
	MaxErrorPct float64
}

var DefaultWindowCfg = WindowCfg{
	Buckets:     5,
	Interval:    time.Minute,
	MinRequests: 10,
	MaxErrorPct: 5,
}

// AnomalyDetector counts requests and server-side failures (mostly store
// outages) over a ring of buckets. Each rotation evaluates the whole ring and
// reports a state change through onTrip / onClear.
type AnomalyDetector struct {
	cfg      WindowCfg
	reqs     atomic.Int64
	errs     atomic.Int64
	mu       sync.Mutex
	ring     []bucket
	next     int
	tripped  bool
	onTrip   func()
	onClear  func()
	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	requests int64
	errors   int64
}

func NewAnomalyDetector(c WindowCfg, onTrip, onClear func()) *AnomalyDetector {
	if c.Buckets < 1 {
		c.Buckets = DefaultWindowCfg.Buckets
	}
	if c.Interval <= 0 {
		c.Interval = DefaultWindowCfg.Interval
	}
	return &AnomalyDetector{
		cfg:     c,
		ring:    make([]bucket, c.Buckets),
		onTrip:  onTrip,
		onClear: onClear,
		done:    make(chan struct{}),
	}
}

func (d *AnomalyDetector) Start() {
	go func() {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.AdvanceWindow()
			case <-d.done:
				return
			}
		}
	}()
}
func (d *AnomalyDetector) Stop() { d.stopOnce.Do(func() { close(d.done) }) }

func (d *AnomalyDetector) RecordRequest() { d.reqs.Add(1) }
func (d *AnomalyDetector) RecordError()   { d.errs.Add(1) }

// AdvanceWindow closes the live bucket into the ring and evaluates it.
// It returns the error percentage over the ring.
func (d *AnomalyDetector) AdvanceWindow() float64 {
	d.mu.Lock()
	d.ring[d.next] = bucket{requests: d.reqs.Swap(0), errors: d.errs.Swap(0)}
	d.next = (d.next + 1) % len(d.ring)
	var total bucket
	for _, b := range d.ring {
		total.requests += b.requests
		total.errors += b.errors
	}
	pct := 0.0
	if total.requests > 0 {
		pct = float64(total.errors) * 100 / float64(total.requests)
	}
	hot := total.requests > d.cfg.MinRequests && pct > d.cfg.MaxErrorPct
	changed := hot != d.tripped
	d.tripped = hot
	d.mu.Unlock()

	metrics.RecentErrorRatePercent.Set(pct)
	if !changed {
		return pct
	}
	if hot {
		util.Warn().
			Float64("error_pct", pct).
			Int64("requests", total.requests).
			Int64("errors", total.errors).
			Msg("high error rate, tightening rate limits")
		if d.onTrip != nil {
			d.onTrip()
		}
		return pct
	}
	util.Info().Float64("error_pct", pct).Msg("error rate back to normal")
	if d.onClear != nil {
		d.onClear()
	}
	return pct
}
