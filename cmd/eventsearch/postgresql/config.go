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

package postgresql

import (
	"fmt"

	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"github.com/united-manufacturing-hub/umh-utils/env"
)

// DefaultTable is the collection the documents live in.
const DefaultTable = "users_events"

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Table    string
}

// ConfigFromEnv reads the POSTGRES_* variables.
// Missing required values are returned as shared.ErrConfiguration.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	var err error

	if cfg.Host, err = env.GetAsString("POSTGRES_HOST", false, "db"); err != nil {
		return cfg, fmt.Errorf("%w: POSTGRES_HOST: %w", shared.ErrConfiguration, err)
	}
	if cfg.Port, err = env.GetAsInt("POSTGRES_PORT", false, 5432); err != nil {
		return cfg, fmt.Errorf("%w: POSTGRES_PORT: %w", shared.ErrConfiguration, err)
	}
	if cfg.User, err = env.GetAsString("POSTGRES_USER", true, ""); err != nil {
		return cfg, fmt.Errorf("%w: POSTGRES_USER: %w", shared.ErrConfiguration, err)
	}
	if cfg.Password, err = env.GetAsString("POSTGRES_PASSWORD", true, ""); err != nil {
		return cfg, fmt.Errorf("%w: POSTGRES_PASSWORD: %w", shared.ErrConfiguration, err)
	}
	if cfg.Database, err = env.GetAsString("POSTGRES_DATABASE", true, ""); err != nil {
		return cfg, fmt.Errorf("%w: POSTGRES_DATABASE: %w", shared.ErrConfiguration, err)
	}
	if cfg.SSLMode, err = env.GetAsString("POSTGRES_SSL_MODE", false, "require"); err != nil {
		return cfg, fmt.Errorf("%w: POSTGRES_SSL_MODE: %w", shared.ErrConfiguration, err)
	}
	if cfg.Table, err = env.GetAsString("POSTGRES_TABLE", false, DefaultTable); err != nil {
		return cfg, fmt.Errorf("%w: POSTGRES_TABLE: %w", shared.ErrConfiguration, err)
	}
	if cfg.Table == "" {
		return cfg, fmt.Errorf("%w: POSTGRES_TABLE is empty", shared.ErrConfiguration)
	}
	return cfg, nil
}

func (c Config) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// String is safe to log, the password is left out.
func (c Config) String() string {
	return fmt.Sprintf("%s@%s:%d/%s [%s]", c.User, c.Host, c.Port, c.Database, c.SSLMode)
}
