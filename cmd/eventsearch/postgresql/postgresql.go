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

// Package postgresql is the primary document store.
// Documents are rows of a text[] column, containment queries use the @> operator
// which a GIN index on the column serves.
package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heptiolabs/healthcheck"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"github.com/united-manufacturing-hub/eventsearch/internal"
	"go.uber.org/zap"
)

// DB is the part of a pgx pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

type Connection struct {
	db    *internal.Lazy[DB]
	table pgx.Identifier
	newID func() string
}

// New returns a store that connects on first use.
// A failed connect is retried on a later call, after a backoff.
func New(cfg Config) *Connection {
	return newConnection(cfg.Table, func(ctx context.Context) (DB, error) {
		zap.S().Infof("Connecting to %s", cfg)
		pool, err := pgxpool.New(ctx, cfg.ConnString())
		if err != nil {
			return nil, classify("open pool", err)
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, shared.ConnectionError("ping", err)
		}
		return pool, nil
	})
}

func newConnection(table string, connect func(ctx context.Context) (DB, error)) *Connection {
	return &Connection{
		db:    internal.NewLazy("postgresql", connect),
		table: pgx.Identifier{table},
		newID: uuid.NewString,
	}
}

func (c *Connection) pool(ctx context.Context) (DB, error) {
	db, err := c.db.Get(ctx)
	if err != nil {
		return nil, classify("connect", err)
	}
	return db, nil
}

// EnsureSchema creates the table and its GIN index if they do not exist.
func (c *Connection) EnsureSchema(ctx context.Context) error {
	db, err := c.pool(ctx)
	if err != nil {
		return err
	}
	index := pgx.Identifier{c.table[0] + "_events_idx"}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			events text[] NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, c.table.Sanitize()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (events)`, index.Sanitize(), c.table.Sanitize()),
	}
	for _, stmt := range statements {
		if _, err = db.Exec(ctx, stmt); err != nil {
			return classify("ensure schema", err)
		}
	}
	zap.S().Debugf("Schema for %s is in place", c.table.Sanitize())
	return nil
}

func (c *Connection) InsertDocument(ctx context.Context, events []string) (string, error) {
	db, err := c.pool(ctx)
	if err != nil {
		return "", err
	}
	id := c.newID()
	_, err = db.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, events) VALUES ($1, $2)`, c.table.Sanitize()), id, events)
	if err != nil {
		return "", classify("insert document", err)
	}
	return id, nil
}

// InsertDocuments writes all documents with a single COPY inside one transaction.
func (c *Connection) InsertDocuments(ctx context.Context, docs [][]string) ([]string, error) {
	db, err := c.pool(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	rows := make([][]any, len(docs))
	for i, events := range docs {
		ids[i] = c.newID()
		rows[i] = []any{ids[i], events}
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, classify("begin", err)
	}

	now := time.Now()
	copied, err := tx.CopyFrom(ctx, c.table, []string{"id", "events"}, pgx.CopyFromRows(rows))
	if err != nil {
		rollback(tx)
		return nil, classify("copy documents", err)
	}
	if copied != int64(len(rows)) {
		rollback(tx)
		return nil, shared.OperationError("copy documents", fmt.Errorf("copied %d of %d rows", copied, len(rows)))
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, classify("commit", err)
	}
	zap.S().Debugf("Inserted %d documents into %s in %s", copied, c.table.Sanitize(), time.Since(now))
	return ids, nil
}

func (c *Connection) FindContainingAll(ctx context.Context, tags []string) ([]shared.Document, error) {
	return c.find(ctx, "find containing all",
		fmt.Sprintf(`SELECT id::text, events FROM %s WHERE events @> $1`, c.table.Sanitize()), tags)
}

func (c *Connection) FindContainingTag(ctx context.Context, tag string) ([]shared.Document, error) {
	return c.find(ctx, "find containing tag",
		fmt.Sprintf(`SELECT id::text, events FROM %s WHERE events @> ARRAY[$1]::text[]`, c.table.Sanitize()), tag)
}

func (c *Connection) find(ctx context.Context, op string, query string, arg any) ([]shared.Document, error) {
	db, err := c.pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, query, arg)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	docs := make([]shared.Document, 0)
	for rows.Next() {
		var doc shared.Document
		if err = rows.Scan(&doc.ID, &doc.Events); err != nil {
			return nil, classify(op, err)
		}
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return docs, nil
}

// IsAvailable pings the database. It does not connect if no connection was made yet.
func (c *Connection) IsAvailable() bool {
	db, ok := c.db.Peek()
	if !ok {
		return false
	}
	ctx, cncl := get5SecondContext()
	defer cncl()
	if err := db.Ping(ctx); err != nil {
		zap.S().Debugf("Failed to ping database: %s", err)
		return false
	}
	return true
}

func (c *Connection) GetHealthCheck() healthcheck.Check {
	return func() error {
		ctx, cncl := get5SecondContext()
		defer cncl()
		if _, err := c.pool(ctx); err != nil {
			return err
		}
		if c.IsAvailable() {
			return nil
		}
		return errors.New("healthcheck failed to reach database")
	}
}

func (c *Connection) Close() {
	if db, ok := c.db.Peek(); ok {
		zap.S().Debugf("Closing postgresql pool")
		db.Close()
	}
}

// classify maps pgx errors onto the store error kinds.
// Errors that are already classified pass through.
func classify(op string, err error) error {
	if errors.Is(err, shared.ErrStoreConnection) || errors.Is(err, shared.ErrStoreOperation) {
		return err
	}
	if errors.Is(err, internal.ErrBackingOff) {
		return shared.ConnectionError(op, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return shared.ConnectionError(op, err)
	}
	var pgErr *pgconn.PgError
	// class 08 is "connection exception"
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return shared.ConnectionError(op, err)
	}
	var parseErr *pgconn.ParseConfigError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: %s: %w", shared.ErrConfiguration, op, err)
	}
	return shared.OperationError(op, err)
}

func rollback(tx pgx.Tx) {
	ctx, cncl := get5SecondContext()
	defer cncl()
	if err := tx.Rollback(ctx); err != nil {
		zap.S().Errorf("Failed to rollback transaction: %s", err)
	}
}

func get5SecondContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
