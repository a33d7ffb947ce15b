package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kvpaste/svc/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRecovers(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	store, err := db.Open("redis://"+addr+"/", db.Options{Timeout: 500 * time.Millisecond})
	require.NoError(t, err)
	s := newTestServer(t, testConfig(), store)

	id := upload(t, s, "before outage")
	mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/", strings.NewReader("during")).Code)
	assert.Equal(t, NotFoundBody, do(t, s, http.MethodGet, "/"+id, nil).Body.String())

	// per-operation connections pick the server up again without a restart
	require.NoError(t, mr.StartAddr(addr))
	require.NoError(t, mr.Set(id, "after outage"))
	assert.Equal(t, "after outage", do(t, s, http.MethodGet, "/"+id, nil).Body.String())
	upload(t, s, "after")
}

func TestSQLiteFileRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pastes.db")
	store, err := db.Open("sqlite://"+path, db.Options{Timeout: time.Second})
	require.NoError(t, err)
	defer store.Close()
	s := newTestServer(t, testConfig(), store)

	id := upload(t, s, "persisted")
	require.NoError(t, os.RemoveAll(dir))

	rec := do(t, s, http.MethodGet, "/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, NotFoundBody, rec.Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/", strings.NewReader("x")).Code)
}

func TestConcurrentUploadsAndReads(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := db.Open("redis://"+mr.Addr()+"/", db.Options{Timeout: 2 * time.Second, Pool: true})
	require.NoError(t, err)
	defer store.Close()
	s := newTestServer(t, testConfig(), store)

	const workers = 50
	var (
		wg       sync.WaitGroup
		failures atomic.Int32
		ids      sync.Map
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := strings.Repeat("z", 1024)
			rec := do(t, s, http.MethodPost, "/", strings.NewReader(body))
			m := linkPattern.FindStringSubmatch(rec.Body.String())
			if rec.Code != http.StatusOK || m == nil {
				failures.Add(1)
				return
			}
			if _, dup := ids.LoadOrStore(m[1], true); dup {
				failures.Add(1)
			}
			if got := do(t, s, http.MethodGet, "/"+m[1], nil).Body.String(); got != body {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, failures.Load())
	assert.Len(t, mr.Keys(), workers)
}
