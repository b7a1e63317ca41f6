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
)

// SearchDirect runs a single "contains all of" query against the primary store.
// The cache is not touched.
func (s *Service) SearchDirect(ctx context.Context, tags []string) (SearchResult, error) {
	start := s.now()

	unique, err := validateTags(tags)
	if err != nil {
		return SearchResult{}, err
	}

	docs, err := s.primary.FindContainingAll(ctx, unique)
	if err != nil {
		return SearchResult{}, storeError("find containing all", err)
	}

	ids := uniqueSorted(shared.IDs(docs))
	result := SearchResult{
		Matches:   ids,
		Count:     len(ids),
		ElapsedMs: s.elapsedMs(start),
	}
	searchDuration.WithLabelValues("direct").Observe(result.ElapsedMs)
	return result, nil
}

// InsertDocument stores one document. Cached sets are left untouched.
func (s *Service) InsertDocument(ctx context.Context, events []string) (string, error) {
	if _, err := validateTags(events); err != nil {
		return "", err
	}
	id, err := s.primary.InsertDocument(ctx, events)
	if err != nil {
		return "", storeError("insert document", err)
	}
	return id, nil
}
