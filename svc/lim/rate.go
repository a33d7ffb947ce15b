package lim

import (
	"kvpaste/metrics"
	"kvpaste/svc/util"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client and endpoint. The table is an
// LRU so idle clients fall out once it is full.
type Limiter struct {
	clients        *lru.Cache[string, *rate.Limiter]
	mu             sync.Mutex
	rpm            int
	burst          int
	trustedProxies []string
	detector       *AnomalyDetector
	adaptive       atomic.Bool
}

type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

func New(rpm, burst, maxClients int, trustedProxies []string) (*Limiter, error) {
	if rpm <= 0 || burst <= 0 {
		return nil, errors.New("rate limit rpm and burst must be positive")
	}
	for _, proxy := range trustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return nil, errors.Wrapf(err, "invalid CIDR in trustedProxies: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return nil, errors.Errorf("invalid IP in trustedProxies: %s", proxy)
		}
	}
	c, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, errors.Wrap(err, "limiter table")
	}
	l := &Limiter{
		clients:        c,
		rpm:            rpm,
		burst:          burst,
		trustedProxies: trustedProxies,
	}
	l.detector = NewAnomalyDetector(DefaultWindowCfg,
		func() { l.adaptive.Store(true) },
		func() { l.adaptive.Store(false) })
	return l, nil
}

func (l *Limiter) Start() { l.detector.Start() }
func (l *Limiter) Stop()  { l.detector.Stop() }

// Adaptive reports whether the error window has tripped; requests then cost
// two tokens until it clears.
func (l *Limiter) Adaptive() bool { return l.adaptive.Load() }
func (l *Limiter) RecordRequest() { l.detector.RecordRequest() }
func (l *Limiter) RecordError()   { l.detector.RecordError() }

// CheckLimit charges one token, or two (at most burst) while adaptive mode is on.
func (l *Limiter) CheckLimit(r *http.Request, endpoint string) *RateLimitResult {
	ip := GetRealIP(r, l.trustedProxies)
	key := ip + ":" + endpoint
	now := time.Now()

	l.mu.Lock()
	bucket, ok := l.clients.Get(key)
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst)
		l.clients.Add(key, bucket)
	}
	l.mu.Unlock()

	cost := 1
	if l.Adaptive() {
		// a bucket never holds more than burst tokens
		cost = min(2, l.burst)
	}
	allowed := bucket.AllowN(now, cost)
	remaining := int(bucket.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	res := &RateLimitResult{
		Allowed:   allowed,
		Limit:     l.rpm,
		Remaining: remaining,
		Reset:     now.Add(time.Minute),
	}
	if !allowed {
		metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
		util.Debug().Str("ip", util.RedactIP(ip)).Str("endpoint", endpoint).Msg("rate limit exceeded")
	}
	return res
}

func (l *Limiter) Tracked() int {
	return l.clients.Len()
}

func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	const maxIPsToParse = 100
	parts := strings.Split(xff, ",")
	parsed := 0
	for i := len(parts) - 1; i >= 0 && parsed < maxIPsToParse; i-- {
		ipStr := strings.TrimSpace(parts[i])
		if ipStr == "" {
			continue
		}
		parsed++
		if net.ParseIP(ipStr) == nil {
			util.Warn().Str("ip", util.RedactIP(ipStr)).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	return remoteIP
}
func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsedIP := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") && parsedIP != nil {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && subnet.Contains(parsedIP) {
				return true
			}
		}
	}
	return false
}
func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
