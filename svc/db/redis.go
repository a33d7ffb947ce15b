package db

import (
	"context"
	"crypto/tls"
	"kvpaste/pkg/domain"
	"kvpaste/svc/util"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisBackend = "redis"

type Redis struct {
	opt     redis.Options
	shared  *redis.Client
	timeout time.Duration
	prefix  string
}

func NewRedis(rawURL string, o Options) (*Redis, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.MaxRetries = -1
	opt.DialTimeout = o.Timeout
	opt.ReadTimeout = o.Timeout
	opt.WriteTimeout = o.Timeout
	opt.ContextTimeoutEnabled = true
	if o.Username != "" {
		opt.Username = o.Username
	}
	if o.Password != "" {
		opt.Password = o.Password
	}
	if opt.TLSConfig != nil {
		opt.TLSConfig.MinVersion = tls.VersionTLS12
	}
	r := &Redis{timeout: o.Timeout, prefix: o.KeyPrefix}
	if o.Pool {
		opt.PoolSize = 50
		opt.MinIdleConns = 5
		opt.PoolTimeout = 4 * time.Second
		opt.ConnMaxIdleTime = 5 * time.Minute
		r.shared = redis.NewClient(opt)
	} else {
		opt.PoolSize = 1
		opt.MinIdleConns = 0
	}
	r.opt = *opt
	return r, nil
}

// one client per operation unless pooled
func (r *Redis) conn() (*redis.Client, func()) {
	if r.shared != nil {
		return r.shared, func() {}
	}
	opt := r.opt
	c := redis.NewClient(&opt)
	return c, func() {
		if err := c.Close(); err != nil {
			util.Debug().Err(err).Msg("redis close")
		}
	}
}

func (r *Redis) key(id domain.PasteID) string {
	return r.prefix + id.String()
}

func (r *Redis) Put(ctx context.Context, id domain.PasteID, value []byte) (err error) {
	start := time.Now()
	defer func() { observe(redisBackend, "set", start, err) }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	c, release := r.conn()
	defer release()
	err = storeErr(redisBackend, "set", c.Set(ctx, r.key(id), value, 0).Err())
	return err
}

func (r *Redis) Get(ctx context.Context, id domain.PasteID) (value []byte, err error) {
	start := time.Now()
	defer func() { observe(redisBackend, "get", start, err) }()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	c, release := r.conn()
	defer release()
	value, err = c.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(ErrNotFound, "redis get %s", id)
	}
	if err != nil {
		return nil, storeErr(redisBackend, "get", err)
	}
	return value, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	c, release := r.conn()
	defer release()
	return storeErr(redisBackend, "ping", c.Ping(ctx).Err())
}

func (r *Redis) Close() error {
	if r.shared != nil {
		return r.shared.Close()
	}
	return nil
}
