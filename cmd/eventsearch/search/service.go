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

// Package search answers "which documents contain all of these events".
//
// Two paths exist. SearchDirect runs one containment query against the primary store.
// SearchCached keeps one set of document ids per event in the cache store, fills a set from
// the primary store the first time the event is asked for, and intersects the sets.
// A filled set is never refreshed, so it goes stale when documents are written after the fill.
package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/EagleChen/mapmutex"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
)

// PrimaryStore is the authoritative document collection.
type PrimaryStore interface {
	InsertDocument(ctx context.Context, events []string) (string, error)
	InsertDocuments(ctx context.Context, docs [][]string) ([]string, error)
	// FindContainingAll returns documents whose events are a superset of tags.
	FindContainingAll(ctx context.Context, tags []string) ([]shared.Document, error)
	// FindContainingTag returns documents whose events contain tag.
	FindContainingTag(ctx context.Context, tag string) ([]shared.Document, error)
}

// CacheStore is a key to string-set store.
type CacheStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	UnionAdd(ctx context.Context, key string, members []string) error
	// Intersect must treat a missing key as an empty set.
	Intersect(ctx context.Context, keys []string) ([]string, error)
}

const (
	DefaultFillConcurrency = 8
	DefaultMaxGenerate     = 10000
)

type Options struct {
	// FillConcurrency bounds the number of tags filled in parallel for one query.
	FillConcurrency int
	// KeyPrefix is prepended to every tag to build its cache key.
	KeyPrefix string
	// MaxGenerate caps GenerateDocuments.
	MaxGenerate int
	// Rand drives the mock document generator. Nil seeds from the clock.
	Rand *rand.Rand
}

type SearchResult struct {
	Matches   []string
	Count     int
	ElapsedMs float64
}

type GenerateResult struct {
	Created int
	IDs     []string
}

type Service struct {
	primary PrimaryStore
	cache   CacheStore
	opts    Options

	locks *mapmutex.Mutex

	rngLock sync.Mutex
	rng     *rand.Rand

	now func() time.Time
}

func NewService(primary PrimaryStore, cache CacheStore, opts Options) *Service {
	if opts.FillConcurrency <= 0 {
		opts.FillConcurrency = DefaultFillConcurrency
	}
	if opts.MaxGenerate <= 0 {
		opts.MaxGenerate = DefaultMaxGenerate
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}

	return &Service{
		primary: primary,
		cache:   cache,
		opts:    opts,
		// 200 retries, 0.1s max delay, 10ns base delay
		locks: mapmutex.NewCustomizedMapMutex(200, 100000000, 10, 1.1, 0.2),
		rng:   rng,
		now:   time.Now,
	}
}

// Key returns the cache key of tag.
func (s *Service) Key(tag string) string {
	return s.opts.KeyPrefix + tag
}

func (s *Service) elapsedMs(start time.Time) float64 {
	return float64(s.now().Sub(start)) / float64(time.Millisecond)
}

// validateTags rejects empty lists and empty tags, and returns the tags without duplicates
// in their original order.
func validateTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, shared.ValidationError("events list is empty")
	}
	seen := make(map[string]struct{}, len(tags))
	unique := make([]string, 0, len(tags))
	for i, t := range tags {
		if t == "" {
			return nil, shared.ValidationError("event at index %d is empty", i)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}
	return unique, nil
}

// storeError keeps an already classified error and classifies everything else as an operation error.
func storeError(op string, err error) error {
	if errors.Is(err, shared.ErrStoreConnection) || errors.Is(err, shared.ErrStoreOperation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return shared.OperationError(op, err)
}

// uniqueSorted removes duplicates from ids and sorts them.
func uniqueSorted(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	out := sorted[:1]
	for _, id := range sorted[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
