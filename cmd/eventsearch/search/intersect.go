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
)

// intersect returns the ids present in the cached set of every tag.
// All tags must have gone through Fill first.
func (s *Service) intersect(ctx context.Context, tags []string) ([]string, error) {
	keys := make([]string, 0, len(tags))
	for _, tag := range tags {
		keys = append(keys, s.Key(tag))
	}

	ids, err := s.cache.Intersect(ctx, keys)
	if err != nil {
		return nil, storeError("cache intersect", err)
	}
	return uniqueSorted(ids), nil
}

// SearchCached fills every tag of the query from the primary store if needed and intersects
// the cached sets. A tag without any document yields an empty result.
func (s *Service) SearchCached(ctx context.Context, tags []string) (SearchResult, error) {
	start := s.now()

	unique, err := validateTags(tags)
	if err != nil {
		return SearchResult{}, err
	}

	if err := s.fillAll(ctx, unique); err != nil {
		return SearchResult{}, err
	}

	ids, err := s.intersect(ctx, unique)
	if err != nil {
		return SearchResult{}, err
	}

	result := SearchResult{
		Matches:   ids,
		Count:     len(ids),
		ElapsedMs: s.elapsedMs(start),
	}
	searchDuration.WithLabelValues("cached").Observe(result.ElapsedMs)
	return result, nil
}
