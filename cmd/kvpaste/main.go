package main

import (
	"context"
	"kvpaste/cfg"
	"kvpaste/svc/api"
	"kvpaste/svc/db"
	"kvpaste/svc/lim"
	"kvpaste/svc/svc"
	"kvpaste/svc/util"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(healthcheck())
	}

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().
		Str("environment", c.Environment).
		Str("store", util.RedactURL(c.StoreURL)).
		Str("host", c.Host).
		Msg("starting kvpaste")

	store, err := db.Open(c.StoreURL, storeOptions(c))
	if err != nil {
		util.Fatal().Err(err).Msg("failed to open store")
	}
	pingCtx, pingCancel := context.WithTimeout(context.Background(), c.StoreTimeout)
	if err := store.Ping(pingCtx); err != nil {
		// requests fail individually until the store comes up
		util.Warn().Err(err).Msg("store not reachable at startup")
	} else {
		util.Info().Bool("pooled", c.StorePool).Msg("store reachable")
	}
	pingCancel()

	pasteSvc := svc.NewPaste(store, c)
	limiter, err := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.RateLimit.Clients, c.TrustedProxies)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create rate limiter")
	}
	limiter.Start()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(c, pasteSvc, limiter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		util.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			util.Error().Err(err).Msg("server shutdown error")
		}
		pasteSvc.Shutdown(10 * time.Second)
		limiter.Stop()
		if cerr := store.Close(); cerr != nil {
			util.Warn().Err(cerr).Msg("store close error")
		}
		return err
	})
	if err := g.Wait(); err != nil {
		util.Error().Err(err).Msg("exited with error")
		c.Wipe()
		os.Exit(1)
	}
	util.Info().Msg("shutdown complete")
}

func storeOptions(c *cfg.Cfg) db.Options {
	return db.Options{
		Timeout:   c.StoreTimeout,
		Pool:      c.StorePool,
		Username:  c.StoreUsername,
		Password:  c.StorePassword.Value(),
		KeyPrefix: c.KeyPrefix,
	}
}

// healthcheck is run by container probes; it exits 0 only if the store answers.
func healthcheck() int {
	c, err := cfg.Load()
	if err != nil {
		return 1
	}
	store, err := db.Open(c.StoreURL, storeOptions(c))
	if err != nil {
		return 1
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return 1
	}
	return 0
}
