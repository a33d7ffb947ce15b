package db

import (
	"context"
	"kvpaste/pkg/domain"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const memoryBackend = "mem"

var errClosed = errors.New("store closed")

type Memory struct {
	mu     sync.RWMutex
	m      map[string][]byte
	prefix string
	closed bool
}

func NewMemory(prefix string) *Memory {
	return &Memory{m: make(map[string][]byte), prefix: prefix}
}

func (s *Memory) Put(ctx context.Context, id domain.PasteID, value []byte) (err error) {
	start := time.Now()
	defer func() { observe(memoryBackend, "set", start, err) }()
	if err := ctx.Err(); err != nil {
		return storeErr(memoryBackend, "set", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storeErr(memoryBackend, "set", errClosed)
	}
	s.m[s.prefix+id.String()] = dup(value)
	return nil
}

func (s *Memory) Get(ctx context.Context, id domain.PasteID) (value []byte, err error) {
	start := time.Now()
	defer func() { observe(memoryBackend, "get", start, err) }()
	if err := ctx.Err(); err != nil {
		return nil, storeErr(memoryBackend, "get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storeErr(memoryBackend, "get", errClosed)
	}
	v, ok := s.m[s.prefix+id.String()]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "mem get %s", id)
	}
	return dup(v), nil
}

func (s *Memory) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storeErr(memoryBackend, "ping", errClosed)
	}
	return nil
}

func (s *Memory) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func dup(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
