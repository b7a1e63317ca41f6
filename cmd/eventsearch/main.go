// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/bolt"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/memory"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/postgresql"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/redis"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/search"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"github.com/united-manufacturing-hub/eventsearch/internal"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"
)

const warmUpAttempts = 5

func main() {
	InitLogging()

	cfg, err := loadConfig()
	if err != nil {
		zap.S().Fatalf("Failed to load configuration: %s", err)
	}

	primary, cache, checks, closers := setupStores(cfg)
	svc := search.NewService(primary, cache, search.Options{
		FillConcurrency: cfg.FillConcurrency,
		KeyPrefix:       cfg.KeyPrefix,
		MaxGenerate:     cfg.MaxGenerate,
	})

	InitPrometheus(cfg.MetricsPort)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           SetupRestAPI(svc, cfg.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := internal.NewGracefulShutdown(func(ctx context.Context) error {
		zap.S().Debugf("Shutting down http server")
		err := server.Shutdown(ctx)
		for _, closeStore := range closers {
			closeStore()
		}
		return err
	}, 30*time.Second)

	InitHealthCheck(cfg.HealthCheckPort, shutdown, checks)

	go func() {
		zap.S().Infof("Serving REST API on %s", server.Addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorf("Error starting REST API: %s", err)
			shutdown.Shutdown()
		}
	}()

	if err = shutdown.Wait(); err != nil {
		os.Exit(1)
	}
}

type appConfig struct {
	HTTPPort        int
	MetricsPort     int
	HealthCheckPort int

	PrimaryStore string
	CacheStore   string
	Postgres     postgresql.Config
	Redis        redis.Config
	BoltPath     string

	KeyPrefix       string
	CacheTTL        time.Duration
	FillConcurrency int
	RequestTimeout  time.Duration
	MaxGenerate     int
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	var err error

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"HTTP_PORT", 8080, &cfg.HTTPPort},
		{"METRICS_PORT", 2112, &cfg.MetricsPort},
		{"HEALTHCHECK_PORT", 8086, &cfg.HealthCheckPort},
		{"SEARCH_FILL_CONCURRENCY", search.DefaultFillConcurrency, &cfg.FillConcurrency},
		{"SEARCH_MAX_GENERATE", search.DefaultMaxGenerate, &cfg.MaxGenerate},
	}
	for _, v := range ints {
		if *v.dst, err = env.GetAsInt(v.key, false, v.fallback); err != nil {
			return cfg, fmt.Errorf("%w: %s: %w", shared.ErrConfiguration, v.key, err)
		}
	}

	ttlSeconds, err := env.GetAsInt("CACHE_TTL_SECONDS", false, 0)
	if err != nil {
		return cfg, fmt.Errorf("%w: CACHE_TTL_SECONDS: %w", shared.ErrConfiguration, err)
	}
	cfg.CacheTTL = time.Duration(ttlSeconds) * time.Second

	timeoutSeconds, err := env.GetAsInt("SEARCH_REQUEST_TIMEOUT_SECONDS", false, 30)
	if err != nil {
		return cfg, fmt.Errorf("%w: SEARCH_REQUEST_TIMEOUT_SECONDS: %w", shared.ErrConfiguration, err)
	}
	cfg.RequestTimeout = time.Duration(timeoutSeconds) * time.Second

	if cfg.KeyPrefix, err = env.GetAsString("CACHE_KEY_PREFIX", false, ""); err != nil {
		return cfg, fmt.Errorf("%w: CACHE_KEY_PREFIX: %w", shared.ErrConfiguration, err)
	}

	if cfg.PrimaryStore, err = env.GetAsString("PRIMARY_STORE", false, "postgresql"); err != nil {
		return cfg, fmt.Errorf("%w: PRIMARY_STORE: %w", shared.ErrConfiguration, err)
	}
	switch cfg.PrimaryStore {
	case "postgresql":
		if cfg.Postgres, err = postgresql.ConfigFromEnv(); err != nil {
			return cfg, err
		}
	case "memory":
	default:
		return cfg, fmt.Errorf("%w: PRIMARY_STORE must be postgresql or memory, got %q", shared.ErrConfiguration, cfg.PrimaryStore)
	}

	if cfg.CacheStore, err = env.GetAsString("CACHE_STORE", false, "redis"); err != nil {
		return cfg, fmt.Errorf("%w: CACHE_STORE: %w", shared.ErrConfiguration, err)
	}
	switch cfg.CacheStore {
	case "redis":
		if cfg.Redis, err = redis.ConfigFromEnv(); err != nil {
			return cfg, err
		}
		cfg.Redis.TTL = cfg.CacheTTL
	case "bolt":
		if cfg.BoltPath, err = env.GetAsString("BOLT_PATH", false, "/data/eventsearch-cache.db"); err != nil {
			return cfg, fmt.Errorf("%w: BOLT_PATH: %w", shared.ErrConfiguration, err)
		}
	case "memory":
	default:
		return cfg, fmt.Errorf("%w: CACHE_STORE must be redis, bolt or memory, got %q", shared.ErrConfiguration, cfg.CacheStore)
	}
	return cfg, nil
}

// setupStores creates the stores and starts connecting to the remote ones in the background.
// Requests arriving before a connection exists connect on their own.
func setupStores(cfg appConfig) (search.PrimaryStore, search.CacheStore, map[string]healthcheck.Check, []func()) {
	checks := make(map[string]healthcheck.Check)
	var closers []func()

	var primary search.PrimaryStore
	if cfg.PrimaryStore == "postgresql" {
		pg := postgresql.New(cfg.Postgres)
		primary = pg
		checks["database"] = pg.GetHealthCheck()
		closers = append(closers, pg.Close)
		go warmUp("postgresql", pg.EnsureSchema)
	} else {
		zap.S().Infof("Using the in-memory primary store, documents are lost on restart")
		primary = memory.NewDocuments()
	}

	var cache search.CacheStore
	switch cfg.CacheStore {
	case "redis":
		rs := redis.New(cfg.Redis)
		cache = rs
		checks["redis"] = rs.GetHealthCheck()
		closers = append(closers, rs.Close)
		check := rs.GetHealthCheck()
		go warmUp("redis", func(context.Context) error { return check() })
	case "bolt":
		bs, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			zap.S().Fatalf("Failed to open bolt cache: %s", err)
		}
		if cfg.CacheTTL > 0 {
			zap.S().Warnf("CACHE_TTL_SECONDS is ignored by the bolt cache store")
		}
		cache = bs
		closers = append(closers, bs.Close)
	default:
		zap.S().Infof("Using the in-memory cache store")
		cache = memory.NewSets(cfg.CacheTTL)
	}
	return primary, cache, checks, closers
}

func warmUp(name string, fn func(ctx context.Context) error) {
	ctx := context.Background()
	for retries := int64(0); retries < warmUpAttempts; retries++ {
		attemptCtx, cncl := context.WithTimeout(ctx, 10*time.Second)
		err := fn(attemptCtx)
		cncl()
		if err == nil {
			zap.S().Infof("%s is ready", name)
			return
		}
		zap.S().Warnf("%s is not ready yet (attempt %d): %s", name, retries+1, err)
		_ = internal.SleepBackedOff(ctx, retries, time.Second, 30*time.Second)
	}
	zap.S().Errorf("%s did not become ready, requests will keep retrying", name)
}

func InitLogging() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") //nolint:errcheck
	_ = logger.New(logLevel)
}

func InitPrometheus(port int) {
	metricsPath := "/metrics"
	metricsPort := fmt.Sprintf(":%d", port)
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, nil)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

func InitHealthCheck(port int, shutdown internal.GracefulShutdownHandler, checks map[string]healthcheck.Check) {
	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000000))
	health.AddReadinessCheck("shutdown", func() error {
		if shutdown.ShuttingDown() {
			return errors.New("shutting down")
		}
		return nil
	})
	for name, check := range checks {
		health.AddReadinessCheck(name, check)
	}

	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
}
