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
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func CreateMockConnection(t *testing.T) (*Connection, pgxmock.PgxPoolIface) {
	mocked, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock connection: %v", err)
	}
	c := newConnection(DefaultTable, func(context.Context) (DB, error) {
		return mocked, nil
	})
	n := 0
	c.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return c, mocked
}

func TestCreateMockConnection(t *testing.T) {
	c, mock := CreateMockConnection(t)
	assert.NotNil(t, c)
	assert.NotNil(t, mock)
	assert.Equal(t, `"users_events"`, c.table.Sanitize())
}

func TestEnsureSchema(t *testing.T) {
	c, mock := CreateMockConnection(t)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "users_events" \( id uuid PRIMARY KEY, events text\[\] NOT NULL,`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "users_events_events_idx" ON "users_events" USING GIN \(events\)`).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))

	require.NoError(t, c.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	c, mock := CreateMockConnection(t)
	defer mock.Close()

	t.Run("single", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO "users_events" \(id, events\) VALUES \(\$1, \$2\)`).
			WithArgs("id-1", []string{"A", "B"}).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		id, err := c.InsertDocument(ctx, []string{"A", "B"})
		require.NoError(t, err)
		assert.Equal(t, "id-1", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bulk", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{"users_events"}, []string{"id", "events"}).
			WillReturnResult(2)
		mock.ExpectCommit()

		ids, err := c.InsertDocuments(ctx, [][]string{{"A"}, {"B", "C"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"id-2", "id-3"}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bulk failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{"users_events"}, []string{"id", "events"}).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, err := c.InsertDocuments(ctx, [][]string{{"A"}})
		assert.ErrorIs(t, err, shared.ErrStoreOperation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short copy rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{"users_events"}, []string{"id", "events"}).
			WillReturnResult(1)
		mock.ExpectRollback()

		_, err := c.InsertDocuments(ctx, [][]string{{"A"}, {"B"}})
		assert.ErrorIs(t, err, shared.ErrStoreOperation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	c, mock := CreateMockConnection(t)
	defer mock.Close()

	t.Run("containing all", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id::text, events FROM "users_events" WHERE events @> \$1`).
			WithArgs([]string{"A", "B"}).
			WillReturnRows(mock.NewRows([]string{"id", "events"}).
				AddRow("d1", []string{"A", "B"}))

		docs, err := c.FindContainingAll(ctx, []string{"A", "B"})
		require.NoError(t, err)
		assert.Equal(t, []shared.Document{{ID: "d1", Events: []string{"A", "B"}}}, docs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("containing tag", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id::text, events FROM "users_events" WHERE events @> ARRAY\[\$1\]::text\[\]`).
			WithArgs("A").
			WillReturnRows(mock.NewRows([]string{"id", "events"}).
				AddRow("d1", []string{"A", "B"}).
				AddRow("d2", []string{"A"}))

		docs, err := c.FindContainingTag(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d2"}, shared.IDs(docs))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id::text, events FROM "users_events"`).
			WithArgs("Z").
			WillReturnRows(mock.NewRows([]string{"id", "events"}))

		docs, err := c.FindContainingTag(ctx, "Z")
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})
}

func TestErrorClassification(t *testing.T) {
	ctx := context.Background()
	c, mock := CreateMockConnection(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id::text, events FROM "users_events"`).
		WithArgs("A").
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	_, err := c.FindContainingTag(ctx, "A")
	assert.ErrorIs(t, err, shared.ErrStoreConnection)

	mock.ExpectQuery(`SELECT id::text, events FROM "users_events"`).
		WithArgs("A").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})
	_, err = c.FindContainingTag(ctx, "A")
	assert.ErrorIs(t, err, shared.ErrStoreOperation)
	assert.NotErrorIs(t, err, shared.ErrStoreConnection)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectFailure(t *testing.T) {
	attempts := 0
	c := newConnection(DefaultTable, func(context.Context) (DB, error) {
		attempts++
		return nil, shared.ConnectionError("ping", errors.New("connection refused"))
	})

	_, err := c.FindContainingTag(context.Background(), "A")
	assert.ErrorIs(t, err, shared.ErrStoreConnection)

	// still in the backoff window, no new attempt
	_, err = c.FindContainingAll(context.Background(), []string{"A"})
	assert.ErrorIs(t, err, shared.ErrStoreConnection)
	assert.Equal(t, 1, attempts)

	assert.False(t, c.IsAvailable())
	assert.Error(t, c.GetHealthCheck()())
}

func TestHealthCheck(t *testing.T) {
	c, mock := CreateMockConnection(t)
	defer mock.Close()

	assert.False(t, c.IsAvailable(), "no connection was made yet")

	mock.ExpectPing()
	assert.NoError(t, c.GetHealthCheck()())

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	assert.False(t, c.IsAvailable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "pg")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DATABASE", "events")
	// t.Setenv restores the previous value on cleanup
	t.Setenv("POSTGRES_USER", "")
	require.NoError(t, os.Unsetenv("POSTGRES_USER"))

	_, err := ConfigFromEnv()
	assert.ErrorIs(t, err, shared.ErrConfiguration, "POSTGRES_USER is required")

	t.Setenv("POSTGRES_USER", "search")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "host=pg port=6543 user=search password=secret dbname=events sslmode=require", cfg.ConnString())
	assert.Equal(t, DefaultTable, cfg.Table)
	assert.NotContains(t, cfg.String(), "secret")

	t.Setenv("POSTGRES_PORT", "not-a-port")
	_, err = ConfigFromEnv()
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}
