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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
)

var errForged = errors.New("forged")

type mockPrimary struct {
	mu       sync.Mutex
	docs     []shared.Document
	nextID   int
	calls    int
	byTag    map[string]int
	failNext error
	delay    time.Duration
}

func newMockPrimary(docs ...shared.Document) *mockPrimary {
	return &mockPrimary{docs: docs, byTag: map[string]int{}}
}

func (p *mockPrimary) fail() error {
	p.calls++
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return err
	}
	return nil
}

func (p *mockPrimary) InsertDocument(_ context.Context, events []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(); err != nil {
		return "", err
	}
	p.nextID++
	id := fmt.Sprintf("gen%d", p.nextID)
	p.docs = append(p.docs, shared.Document{ID: id, Events: events})
	return id, nil
}

func (p *mockPrimary) InsertDocuments(_ context.Context, docs [][]string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, events := range docs {
		p.nextID++
		id := fmt.Sprintf("gen%d", p.nextID)
		p.docs = append(p.docs, shared.Document{ID: id, Events: events})
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *mockPrimary) FindContainingAll(_ context.Context, tags []string) ([]shared.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(); err != nil {
		return nil, err
	}
	var out []shared.Document
	for _, d := range p.docs {
		if containsAll(d.Events, tags) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *mockPrimary) FindContainingTag(ctx context.Context, tag string) ([]shared.Document, error) {
	p.mu.Lock()
	delay := p.delay
	p.byTag[tag]++
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return p.FindContainingAll(ctx, []string{tag})
}

func (p *mockPrimary) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *mockPrimary) tagQueries(tag string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byTag[tag]
}

func containsAll(events []string, tags []string) bool {
	set := make(map[string]struct{}, len(events))
	for _, e := range events {
		set[e] = struct{}{}
	}
	for _, t := range tags {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

type mockCache struct {
	mu       sync.Mutex
	sets     map[string]map[string]struct{}
	calls    int
	writes   int
	failNext error
}

func newMockCache() *mockCache {
	return &mockCache{sets: map[string]map[string]struct{}{}}
}

func (c *mockCache) fail() error {
	c.calls++
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return err
	}
	return nil
}

func (c *mockCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(); err != nil {
		return false, err
	}
	_, ok := c.sets[key]
	return ok, nil
}

func (c *mockCache) UnionAdd(_ context.Context, key string, members []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(); err != nil {
		return err
	}
	c.writes++
	set, ok := c.sets[key]
	if !ok {
		set = map[string]struct{}{}
		c.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (c *mockCache) Intersect(_ context.Context, keys []string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	for _, k := range keys {
		if _, ok := c.sets[k]; !ok {
			return []string{}, nil
		}
	}
	var out []string
	for m := range c.sets[keys[0]] {
		inAll := true
		for _, k := range keys[1:] {
			if _, ok := c.sets[k][m]; !ok {
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

func (c *mockCache) members(key string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return uniqueSorted(out)
}

func (c *mockCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sets[key]
	return ok
}

func (c *mockCache) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *mockCache) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}
