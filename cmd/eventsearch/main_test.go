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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/memory"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
)

func clearEnv(t *testing.T, keys ...string) {
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t, "HTTP_PORT", "METRICS_PORT", "HEALTHCHECK_PORT", "SEARCH_FILL_CONCURRENCY",
		"SEARCH_MAX_GENERATE", "CACHE_TTL_SECONDS", "SEARCH_REQUEST_TIMEOUT_SECONDS", "CACHE_KEY_PREFIX")
	t.Setenv("PRIMARY_STORE", "memory")
	t.Setenv("CACHE_STORE", "memory")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 2112, cfg.MetricsPort)
	assert.Equal(t, 8086, cfg.HealthCheckPort)
	assert.Equal(t, 8, cfg.FillConcurrency)
	assert.Equal(t, 10000, cfg.MaxGenerate)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Zero(t, cfg.CacheTTL)

	primary, cache, checks, closers := setupStores(cfg)
	assert.IsType(t, &memory.Documents{}, primary)
	assert.IsType(t, &memory.Sets{}, cache)
	assert.Empty(t, checks)
	assert.Empty(t, closers)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("PRIMARY_STORE", "mongodb")
	t.Setenv("CACHE_STORE", "memory")
	_, err := loadConfig()
	assert.ErrorIs(t, err, shared.ErrConfiguration)

	t.Setenv("PRIMARY_STORE", "memory")
	t.Setenv("CACHE_STORE", "memcached")
	_, err = loadConfig()
	assert.ErrorIs(t, err, shared.ErrConfiguration)

	t.Setenv("CACHE_STORE", "memory")
	t.Setenv("CACHE_TTL_SECONDS", "soon")
	_, err = loadConfig()
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestLoadConfigPostgresRequiresCredentials(t *testing.T) {
	clearEnv(t, "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DATABASE")
	t.Setenv("PRIMARY_STORE", "postgresql")
	t.Setenv("CACHE_STORE", "memory")

	_, err := loadConfig()
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestSetupBoltStore(t *testing.T) {
	t.Setenv("PRIMARY_STORE", "memory")
	t.Setenv("CACHE_STORE", "bolt")
	t.Setenv("BOLT_PATH", t.TempDir()+"/cache.db")

	cfg, err := loadConfig()
	require.NoError(t, err)
	_, _, _, closers := setupStores(cfg)
	require.Len(t, closers, 1)
	closers[0]()
}
