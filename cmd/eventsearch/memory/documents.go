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

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"
	"github.com/rung/go-safecast"
	"github.com/united-manufacturing-hub/eventsearch/cmd/eventsearch/shared"
	"go.uber.org/zap"
)

// Documents is a primary store kept in process memory.
// Every event has a posting list of row numbers, containment queries AND the lists.
type Documents struct {
	mu       sync.RWMutex
	rows     []shared.Document
	postings map[string]*roaring.Bitmap
	newID    func() string
}

func NewDocuments() *Documents {
	return &Documents{
		postings: make(map[string]*roaring.Bitmap),
		newID:    uuid.NewString,
	}
}

// Len is the number of stored documents.
func (d *Documents) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

// rowNumber converts a row index to a posting list entry.
func rowNumber(n int) (uint32, error) {
	row, err := safecast.Int32(n)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errFull, err)
	}
	return uint32(row), nil
}

func (d *Documents) insert(events []string) (string, error) {
	row, err := rowNumber(len(d.rows))
	if err != nil {
		return "", shared.OperationError("insert", err)
	}
	id := d.newID()

	stored := make([]string, len(events))
	copy(stored, events)
	d.rows = append(d.rows, shared.Document{ID: id, Events: stored})

	for _, e := range stored {
		list, ok := d.postings[e]
		if !ok {
			list = roaring.New()
			d.postings[e] = list
		}
		list.Add(row)
	}
	return id, nil
}

func (d *Documents) InsertDocument(ctx context.Context, events []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", shared.OperationError("insert document", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.insert(events)
}

func (d *Documents) InsertDocuments(ctx context.Context, docs [][]string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.OperationError("insert documents", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(docs))
	for _, events := range docs {
		id, err := d.insert(events)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	zap.S().Debugf("Inserted %d documents into memory store", len(ids))
	return ids, nil
}

func (d *Documents) FindContainingAll(ctx context.Context, tags []string) ([]shared.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.OperationError("find containing all", err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(tags) == 0 {
		out := make([]shared.Document, len(d.rows))
		copy(out, d.rows)
		return out, nil
	}

	lists := make([]*roaring.Bitmap, 0, len(tags))
	for _, t := range tags {
		list, ok := d.postings[t]
		if !ok {
			return []shared.Document{}, nil
		}
		lists = append(lists, list)
	}

	var matched *roaring.Bitmap
	if len(lists) == 1 {
		matched = lists[0].Clone()
	} else {
		matched = roaring.FastAnd(lists...)
	}

	out := make([]shared.Document, 0, matched.GetCardinality())
	it := matched.Iterator()
	for it.HasNext() {
		out = append(out, d.rows[it.Next()])
	}
	return out, nil
}

func (d *Documents) FindContainingTag(ctx context.Context, tag string) ([]shared.Document, error) {
	return d.FindContainingAll(ctx, []string{tag})
}
