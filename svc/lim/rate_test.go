package lim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(remote, xff string) *http.Request {
	r := httptest.NewRequest("GET", "/abc", nil)
	r.RemoteAddr = remote
	if xff != "" {
		r.Header.Set("X-Forwarded-For", xff)
	}
	return r
}

func TestCheckLimitBurst(t *testing.T) {
	l, err := New(60, 3, 100, nil)
	require.NoError(t, err)
	r := request("203.0.113.7:4000", "")

	for i := 0; i < 3; i++ {
		res := l.CheckLimit(r, "create")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 60, res.Limit)
	}
	res := l.CheckLimit(r, "create")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	assert.True(t, l.CheckLimit(r, "read").Allowed, "endpoints have separate buckets")
	assert.True(t, l.CheckLimit(request("203.0.113.8:4000", ""), "create").Allowed, "clients have separate buckets")
}

func TestCheckLimitAdaptiveMode(t *testing.T) {
	l, err := New(60, 4, 100, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		l.RecordRequest()
	}
	for i := 0; i < 5; i++ {
		l.RecordError()
	}
	l.detector.AdvanceWindow()
	require.True(t, l.Adaptive())
	r := request("198.51.100.1:1", "")
	assert.True(t, l.CheckLimit(r, "create").Allowed)
	assert.True(t, l.CheckLimit(r, "create").Allowed)
	assert.False(t, l.CheckLimit(r, "create").Allowed)
}

func TestCheckLimitAdaptiveModeBurstOne(t *testing.T) {
	l, err := New(60, 1, 10, nil)
	require.NoError(t, err)
	l.adaptive.Store(true)
	r := request("198.51.100.2:1", "")
	assert.True(t, l.CheckLimit(r, "create").Allowed)
	assert.False(t, l.CheckLimit(r, "create").Allowed)
	assert.True(t, l.CheckLimit(request("198.51.100.3:1", ""), "create").Allowed)
}

func TestClientTableIsBounded(t *testing.T) {
	l, err := New(60, 1, 2, nil)
	require.NoError(t, err)
	for _, ip := range []string{"192.0.2.1:1", "192.0.2.2:1", "192.0.2.3:1"} {
		l.CheckLimit(request(ip, ""), "create")
	}
	assert.Equal(t, 2, l.Tracked())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(0, 1, 10, nil)
	assert.Error(t, err)
	_, err = New(1, 1, 10, []string{"10.0.0.0/99"})
	assert.Error(t, err)
	_, err = New(1, 1, 10, []string{"nope"})
	assert.Error(t, err)
	_, err = New(1, 1, 0, nil)
	assert.Error(t, err)
}

func TestGetRealIP(t *testing.T) {
	trusted := []string{"10.0.0.0/8", "127.0.0.1"}
	tests := []struct {
		name    string
		remote  string
		xff     string
		trusted []string
		want    string
	}{
		{"no proxies configured", "203.0.113.5:80", "1.2.3.4", nil, "203.0.113.5"},
		{"untrusted peer ignores xff", "203.0.113.5:80", "1.2.3.4", trusted, "203.0.113.5"},
		{"trusted peer uses xff", "10.1.2.3:80", "1.2.3.4", trusted, "1.2.3.4"},
		{"rightmost untrusted hop wins", "127.0.0.1:80", "6.6.6.6, 1.2.3.4, 10.0.0.9", trusted, "1.2.3.4"},
		{"garbage skipped", "10.1.2.3:80", "1.2.3.4, junk", trusted, "1.2.3.4"},
		{"all trusted falls back", "10.1.2.3:80", "10.0.0.1", trusted, "10.1.2.3"},
		{"empty xff", "10.1.2.3:80", "", trusted, "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetRealIP(request(tt.remote, tt.xff), tt.trusted))
		})
	}
}

func TestAnomalyDetectorTripsAndClears(t *testing.T) {
	var trips, clears int
	d := NewAnomalyDetector(WindowCfg{Buckets: 3, Interval: time.Hour, MinRequests: 10, MaxErrorPct: 5},
		func() { trips++ },
		func() { clears++ })
	for i := 0; i < 20; i++ {
		d.RecordRequest()
	}
	for i := 0; i < 5; i++ {
		d.RecordError()
	}
	assert.InDelta(t, 25.0, d.AdvanceWindow(), 0.001)
	assert.Equal(t, 1, trips)

	// still inside the ring: no second trip
	d.AdvanceWindow()
	assert.Equal(t, 1, trips)
	assert.Zero(t, clears)

	d.AdvanceWindow()
	assert.Zero(t, d.AdvanceWindow())
	assert.Equal(t, 1, clears)
}

func TestAnomalyDetectorQuiet(t *testing.T) {
	fired := 0
	d := NewAnomalyDetector(DefaultWindowCfg, func() { fired++ }, nil)
	for i := 0; i < 100; i++ {
		d.RecordRequest()
	}
	d.RecordError()
	assert.InDelta(t, 1.0, d.AdvanceWindow(), 0.001)
	assert.Zero(t, fired)

	d.Stop()
	d.Stop()

	sparse := NewAnomalyDetector(DefaultWindowCfg, func() { fired++ }, nil)
	for i := 0; i < 5; i++ {
		sparse.RecordRequest()
		sparse.RecordError()
	}
	sparse.AdvanceWindow()
	assert.Zero(t, fired, "error spikes under the request floor are ignored")
}
