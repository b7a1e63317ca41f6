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
)

// EventVocabulary is every event a mock document can carry, "A" to "Z".
var EventVocabulary = func() []string {
	v := make([]string, 26)
	for i := range v {
		v[i] = string(rune('A' + i))
	}
	return v
}()

// MockEvents returns between 1 and len(EventVocabulary) distinct events in random order.
func (s *Service) MockEvents() []string {
	s.rngLock.Lock()
	defer s.rngLock.Unlock()

	count := s.rng.Intn(len(EventVocabulary)) + 1
	perm := s.rng.Perm(len(EventVocabulary))

	events := make([]string, count)
	for i := 0; i < count; i++ {
		events[i] = EventVocabulary[perm[i]]
	}
	return events
}

// GenerateDocuments seeds the primary store with count mock documents in one bulk insert.
func (s *Service) GenerateDocuments(ctx context.Context, count int) (GenerateResult, error) {
	if count < 1 || count > s.opts.MaxGenerate {
		return GenerateResult{}, shared.ValidationError("count must be between 1 and %d, got %d", s.opts.MaxGenerate, count)
	}

	docs := make([][]string, count)
	for i := range docs {
		docs[i] = s.MockEvents()
	}

	ids, err := s.primary.InsertDocuments(ctx, docs)
	if err != nil {
		return GenerateResult{}, storeError("insert documents", err)
	}

	documentsGenerated.Add(float64(len(ids)))
	zap.S().Infow("Generated mock documents", "count", len(ids))
	return GenerateResult{Created: len(ids), IDs: ids}, nil
}
