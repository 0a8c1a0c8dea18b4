/*
 * Copyright (c) 2023-present unTill Pro, Ltd. and Contributors
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */

package rc

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// counts of the runtime primitives called by the package
var (
	metricsSet         = metrics.NewSet()
	adoptCounter       = metricsSet.NewCounter(`rc_adopt_total`)
	retainCounter      = metricsSet.NewCounter(`rc_retain_total`)
	releaseCounter     = metricsSet.NewCounter(`rc_release_total`)
	autoreleaseCounter = metricsSet.NewCounter(`rc_autorelease_total`)
	poolPushCounter    = metricsSet.NewCounter(`rc_pool_push_total`)
	poolDrainCounter   = metricsSet.NewCounter(`rc_pool_drain_total`)
)

func init() {
	metricsSet.NewGauge(`rc_claims_in_use`, func() float64 {
		return float64(GetClaimsInUse())
	})
}

// WriteMetrics writes the package counters in Prometheus text format
func WriteMetrics(w io.Writer) {
	metricsSet.WritePrometheus(w)
}
