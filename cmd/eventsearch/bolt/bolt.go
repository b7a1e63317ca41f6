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

// Package bolt is a cache store kept in a local bbolt file, so filled sets survive a restart
// of a single instance. Every key is a nested bucket whose keys are the set members.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketSets = []byte("sets")
	// stored as the value of every member, Get returns nil only for absent keys
	present = []byte{1}
)

type Store struct {
	db *bbolt.DB
}

// Open opens or creates the file at path. A locked or unreadable file is a connection error.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, shared.ConnectionError("open bolt db", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSets); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSets, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, shared.OperationError("create buckets", err)
	}
	zap.S().Infof("Opened bolt cache at %s", path)
	return &Store{db: db}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.OperationError("exists", err)
	}
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(bucketSets).Bucket([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, classify("exists", err)
	}
	return ok, nil
}

func (s *Store) UnionAdd(ctx context.Context, key string, members []string) error {
	if err := ctx.Err(); err != nil {
		return shared.OperationError("union add", err)
	}
	if len(members) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		set, err := tx.Bucket(bucketSets).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		for _, m := range members {
			if err = set.Put([]byte(m), present); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify("union add", err)
	}
	return nil
}

// Intersect walks the smallest set and probes the others. A missing key is an empty set.
func (s *Store) Intersect(ctx context.Context, keys []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.OperationError("intersect", err)
	}
	out := []string{}
	if len(keys) == 0 {
		return out, nil
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketSets)
		sets := make([]*bbolt.Bucket, len(keys))
		smallest := 0
		for i, k := range keys {
			sets[i] = root.Bucket([]byte(k))
			if sets[i] == nil {
				return nil
			}
			if sets[i].Stats().KeyN < sets[smallest].Stats().KeyN {
				smallest = i
			}
		}

		return sets[smallest].ForEach(func(member, _ []byte) error {
			for i, set := range sets {
				if i != smallest && set.Get(member) == nil {
					return nil
				}
			}
			out = append(out, string(member))
			return nil
		})
	})
	if err != nil {
		return nil, classify("intersect", err)
	}
	return out, nil
}

// Members returns the set at key, nil if absent.
func (s *Store) Members(key string) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		set := tx.Bucket(bucketSets).Bucket([]byte(key))
		if set == nil {
			return nil
		}
		out = []string{}
		return set.ForEach(func(member, _ []byte) error {
			out = append(out, string(member))
			return nil
		})
	})
	return out, err
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		zap.S().Warnf("Failed to close bolt cache: %s", err)
	}
}

func classify(op string, err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return shared.ConnectionError(op, err)
	}
	return shared.OperationError(op, err)
}
