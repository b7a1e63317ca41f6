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

package search

import (
	"context"

	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FillOutcome tells what Fill did for a tag.
type FillOutcome int

const (
	// FillUnknown is returned alongside an error, the fill did not finish.
	FillUnknown FillOutcome = iota
	// FillHit means the tag already had a cache entry, nothing was written.
	FillHit
	// FillStored means the tag was missing and its ids were written to the cache.
	FillStored
	// FillEmpty means the tag was missing and no document carries it. No entry was created,
	// so the next request for the tag queries the primary store again.
	FillEmpty
)

func (o FillOutcome) String() string {
	switch o {
	case FillUnknown:
		return "unknown"
	case FillHit:
		return "hit"
	case FillStored:
		return "miss"
	case FillEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Fill makes sure the cache holds the ids of every document containing tag.
// An existing entry is trusted as is and never refreshed.
func (s *Service) Fill(ctx context.Context, tag string) (FillOutcome, error) {
	key := s.Key(tag)

	if err := ctx.Err(); err != nil {
		return FillUnknown, shared.OperationError("fill", err)
	}
	// Serialises fills of one tag inside this process. Without the lock the fill still
	// converges, SADD of the same ids is idempotent.
	if s.locks.TryLock(key) {
		defer s.locks.Unlock(key)
	} else {
		// TryLock spins without looking at ctx
		if err := ctx.Err(); err != nil {
			return FillUnknown, shared.OperationError("fill", err)
		}
		zap.S().Debugw("Filling without lock", "tag", tag)
	}

	exists, err := s.cache.Exists(ctx, key)
	if err != nil {
		return FillUnknown, storeError("cache exists", err)
	}
	if exists {
		cacheLookups.WithLabelValues(FillHit.String()).Inc()
		return FillHit, nil
	}

	start := s.now()
	docs, err := s.primary.FindContainingTag(ctx, tag)
	if err != nil {
		return FillUnknown, storeError("find containing tag", err)
	}

	ids := uniqueSorted(shared.IDs(docs))
	if len(ids) == 0 {
		cacheLookups.WithLabelValues(FillEmpty.String()).Inc()
		zap.S().Debugw("Tag matches no document, leaving it unfilled", "tag", tag)
		return FillEmpty, nil
	}

	if err := s.cache.UnionAdd(ctx, key, ids); err != nil {
		return FillUnknown, storeError("cache union add", err)
	}
	cacheLookups.WithLabelValues(FillStored.String()).Inc()
	fillDuration.Observe(s.elapsedMs(start))
	zap.S().Debugw("Filled tag", "tag", tag, "documents", len(ids))
	return FillStored, nil
}

// fillAll fills every tag, at most FillConcurrency at a time, and returns once all of them
// finished. The first error cancels the remaining fills.
func (s *Service) fillAll(ctx context.Context, tags []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FillConcurrency)

	for _, tag := range tags {
		tag := tag
		g.Go(func() error {
			_, err := s.Fill(gctx, tag)
			return err
		})
	}
	return g.Wait()
}
