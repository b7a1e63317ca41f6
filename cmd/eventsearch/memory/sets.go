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

// Package memory holds the in-process stores used in dry-run mode and in tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
)

var errFull = errors.New("memory store is full")

type set map[string]struct{}

// Sets is a cache store of string sets kept in a go-cache.
// With a zero ttl entries never expire.
type Sets struct {
	// guards read-modify-write in UnionAdd, go-cache only locks single operations
	mu    sync.Mutex
	items *cache.Cache
}

func NewSets(ttl time.Duration) *Sets {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = 2 * ttl
	}
	return &Sets{items: cache.New(expiration, cleanup)}
}

func (s *Sets) get(key string) (set, bool) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	return v.(set), true
}

func (s *Sets) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.OperationError("exists", err)
	}
	_, ok := s.get(key)
	return ok, nil
}

// UnionAdd adds members to the set at key. The stored set is replaced, never mutated,
// so readers holding the old one are not affected.
func (s *Sets) UnionAdd(ctx context.Context, key string, members []string) error {
	if err := ctx.Err(); err != nil {
		return shared.OperationError("union add", err)
	}
	if len(members) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, _ := s.get(key)
	next := make(set, len(old)+len(members))
	for m := range old {
		next[m] = struct{}{}
	}
	for _, m := range members {
		next[m] = struct{}{}
	}
	s.items.SetDefault(key, next)
	return nil
}

// Intersect returns the members present in every set. A missing key is an empty set.
func (s *Sets) Intersect(ctx context.Context, keys []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.OperationError("intersect", err)
	}
	if len(keys) == 0 {
		return []string{}, nil
	}

	sets := make([]set, 0, len(keys))
	for _, k := range keys {
		v, ok := s.get(k)
		if !ok {
			return []string{}, nil
		}
		sets = append(sets, v)
	}

	// walk the smallest set
	smallest := 0
	for i, v := range sets {
		if len(v) < len(sets[smallest]) {
			smallest = i
		}
	}

	out := make([]string, 0, len(sets[smallest]))
	for m := range sets[smallest] {
		inAll := true
		for i, v := range sets {
			if i == smallest {
				continue
			}
			if _, ok := v[m]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, m)
		}
	}
	return out, nil
}

// Members returns the set at key, nil if absent.
func (s *Sets) Members(key string) []string {
	v, ok := s.get(key)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for m := range v {
		out = append(out, m)
	}
	return out
}
