// Copyright (C) 2025, VigilantDoomer
//
// This file is part of VigilantVIS program.
//
// VigilantVIS is free software: you can redistribute it
// and/or modify it under the terms of GNU General Public License
// as published by the Free Software Foundation, either version 2 of
// the License, or (at your option) any later version.
//
// VigilantVIS is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VigilantVIS.  If not, see <https://www.gnu.org/licenses/>.
package pvs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"

	cacheHit      = "hit"
	cacheMissing  = "missing"
	cacheCorrupt  = "corrupt"
	cacheMismatch = "mismatch"
)

var (
	cacheLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vigilantpvs_cache_loads_total",
		Help: "The number of PVS cache lookups by outcome.",
	}, []string{
		resultLabel,
	})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vigilantpvs_build_seconds",
		Help:    "The time to build the PVS of a level.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	pairsTested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigilantpvs_pairs_tested_total",
		Help: "The number of leaf pairs run through the swept volume test.",
	})

	pairsVisible = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vigilantpvs_pairs_visible_total",
		Help: "The number of tested leaf pairs found visible.",
	})
)

func instrumentCacheLoad(result string) {
	cacheLoads.With(prometheus.Labels{
		resultLabel: result,
	}).Inc()
}

func instrumentBuild(start time.Time) {
	buildDuration.Observe(time.Since(start).Seconds())
}

func instrumentRow(tested, visible int) {
	pairsTested.Add(float64(tested))
	pairsVisible.Add(float64(visible))
}
