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

package models

import "fmt"

// EventsRequest is the body of the search and insert routes.
type EventsRequest struct {
	Events []string `json:"events" binding:"required"`
}

type GenerateRequest struct {
	N int `form:"n,default=10"`
}

type GenerateResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type DirectSearchResponse struct {
	QueryTime   string   `json:"queryTimeMs"`
	MatchCount  int      `json:"matchCount"`
	MatchingIds []string `json:"matchingIds"`
}

type CachedSearchResponse struct {
	QueryTime         string   `json:"queryTimeMs"`
	MatchCount        int      `json:"matchCount"`
	MatchingDocuments []string `json:"matchingDocuments"`
}

type InsertResponse struct {
	ID string `json:"id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// FormatQueryTime renders milliseconds the way the search routes report them, e.g. "1.23 ms".
func FormatQueryTime(ms float64) string {
	return fmt.Sprintf("%.2f ms", ms)
}
