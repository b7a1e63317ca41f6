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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventsearch"

var (
	searchDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      "search_duration_milliseconds",
			Help:      "Time taken to answer a search (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.99: 0.01,
			},
		},
		[]string{"mode"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups per tag, by result (hit, miss, empty)",
		},
		[]string{"result"},
	)

	fillDuration = promauto.NewSummary(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      "fill_duration_milliseconds",
			Help:      "Time taken to fill one tag from the primary store (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.99: 0.01,
			},
		},
	)

	documentsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_generated_total",
			Help:      "Total number of mock documents written to the primary store",
		},
	)

	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of failed requests by error kind",
		},
		[]string{"kind"},
	)
)

// RecordError counts a failed request under kind.
func RecordError(kind string) {
	errorCounter.WithLabelValues(kind).Inc()
}
