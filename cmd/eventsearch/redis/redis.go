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

// Package redis is the cache store. Every key holds a redis set of document ids.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/heptiolabs/healthcheck"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"github.com/united-manufacturing-hub/eventsearch/internal"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
)

type Config struct {
	URI      string
	URI2     string
	URI3     string
	Master   string
	Password string
	DB       int
	// TTL of a filled set, zero keeps it forever
	TTL time.Duration
}

// ConfigFromEnv reads the REDIS_* variables. TTL is left to the caller.
// With REDIS_SENTINEL_MASTER set the URIs are sentinel addresses.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	var err error

	if cfg.URI, err = env.GetAsString("REDIS_URI", false, "localhost:6379"); err != nil {
		return cfg, fmt.Errorf("%w: REDIS_URI: %w", shared.ErrConfiguration, err)
	}
	if cfg.URI2, err = env.GetAsString("REDIS_URI2", false, ""); err != nil {
		return cfg, fmt.Errorf("%w: REDIS_URI2: %w", shared.ErrConfiguration, err)
	}
	if cfg.URI3, err = env.GetAsString("REDIS_URI3", false, ""); err != nil {
		return cfg, fmt.Errorf("%w: REDIS_URI3: %w", shared.ErrConfiguration, err)
	}
	if cfg.Master, err = env.GetAsString("REDIS_SENTINEL_MASTER", false, ""); err != nil {
		return cfg, fmt.Errorf("%w: REDIS_SENTINEL_MASTER: %w", shared.ErrConfiguration, err)
	}
	if cfg.Password, err = env.GetAsString("REDIS_PASSWORD", false, ""); err != nil {
		return cfg, fmt.Errorf("%w: REDIS_PASSWORD: %w", shared.ErrConfiguration, err)
	}
	if cfg.DB, err = env.GetAsInt("REDIS_DB", false, 0); err != nil {
		return cfg, fmt.Errorf("%w: REDIS_DB: %w", shared.ErrConfiguration, err)
	}
	if cfg.URI == "" {
		return cfg, fmt.Errorf("%w: REDIS_URI is empty", shared.ErrConfiguration)
	}
	return cfg, nil
}

func (c Config) newClient() *redis.Client {
	if c.Master == "" {
		return redis.NewClient(&redis.Options{
			Addr:     c.URI,
			Password: c.Password,
			DB:       c.DB,
		})
	}
	addrs := []string{c.URI}
	for _, a := range []string{c.URI2, c.URI3} {
		if a != "" {
			addrs = append(addrs, a)
		}
	}
	var failOverOptions = redis.FailoverOptions{
		MasterName:       c.Master,
		SentinelAddrs:    addrs,
		SentinelPassword: c.Password,
		Password:         c.Password,
		DB:               c.DB,
	}
	zap.S().Debugf("Using redis sentinels %v for master %s", addrs, c.Master)
	return redis.NewFailoverClient(&failOverOptions)
}

type Store struct {
	client *internal.Lazy[*redis.Client]
	ttl    time.Duration
}

// New returns a store that connects on first use.
func New(cfg Config) *Store {
	return newStore(cfg.TTL, func(ctx context.Context) (*redis.Client, error) {
		zap.S().Infof("Connecting to redis at %s (db %d)", cfg.URI, cfg.DB)
		client := cfg.newClient()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, shared.ConnectionError("ping", err)
		}
		return client, nil
	})
}

func newStore(ttl time.Duration, connect func(ctx context.Context) (*redis.Client, error)) *Store {
	return &Store{
		client: internal.NewLazy("redis", connect),
		ttl:    ttl,
	}
}

func (s *Store) get(ctx context.Context) (*redis.Client, error) {
	client, err := s.client.Get(ctx)
	if err != nil {
		return nil, classify("connect", err)
	}
	return client, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	client, err := s.get(ctx)
	if err != nil {
		return false, err
	}
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, classify("exists", err)
	}
	return n > 0, nil
}

// UnionAdd adds members to the set at key, and sets the ttl in the same transaction.
func (s *Store) UnionAdd(ctx context.Context, key string, members []string) error {
	if len(members) == 0 {
		return nil
	}
	client, err := s.get(ctx)
	if err != nil {
		return err
	}

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, args...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return classify("union add", err)
	}
	return nil
}

// Intersect returns the members present in every set.
// SINTER treats a missing key as empty, the EXISTS checks in the same
// transaction make that explicit so a key expiring mid-query cannot go unnoticed.
func (s *Store) Intersect(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return []string{}, nil
	}
	client, err := s.get(ctx)
	if err != nil {
		return nil, err
	}

	exists := make([]*redis.IntCmd, len(keys))
	var inter *redis.StringSliceCmd
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			exists[i] = pipe.Exists(ctx, k)
		}
		inter = pipe.SInter(ctx, keys...)
		return nil
	})
	if err != nil {
		return nil, classify("intersect", err)
	}

	for i, cmd := range exists {
		if cmd.Val() == 0 {
			zap.S().Debugf("Key %s is missing, intersection is empty", keys[i])
			return []string{}, nil
		}
	}
	members := inter.Val()
	if members == nil {
		members = []string{}
	}
	return members, nil
}

// IsAvailable pings redis. It does not connect if no connection was made yet.
func (s *Store) IsAvailable() bool {
	client, ok := s.client.Peek()
	if !ok {
		return false
	}
	ctx, cncl := context.WithTimeout(context.Background(), 10*time.Second)
	defer cncl()
	statusCmd := client.Ping(ctx)
	if statusCmd.Val() == "PONG" {
		return true
	}
	zap.S().Debugf("Redis Error: %s", statusCmd)
	return false
}

func (s *Store) GetHealthCheck() healthcheck.Check {
	return func() error {
		ctx, cncl := context.WithTimeout(context.Background(), 10*time.Second)
		defer cncl()
		if _, err := s.get(ctx); err != nil {
			return err
		}
		if s.IsAvailable() {
			return nil
		}
		return errors.New("healthcheck failed to reach redis")
	}
}

func (s *Store) Close() {
	if client, ok := s.client.Peek(); ok {
		zap.S().Debugf("Closing redis client")
		if err := client.Close(); err != nil {
			zap.S().Warnf("Failed to close redis client: %s", err)
		}
	}
}

func classify(op string, err error) error {
	if errors.Is(err, shared.ErrStoreConnection) || errors.Is(err, shared.ErrStoreOperation) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, internal.ErrBackingOff),
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr):
		return shared.ConnectionError(op, err)
	}
	return shared.OperationError(op, err)
}
