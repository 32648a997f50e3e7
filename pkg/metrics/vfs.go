// Package metrics regroups the prometheus collectors exposed by the stack.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// VFSOpsCounter is the number of structural operations executed on
// filespaces, by operation kind.
var VFSOpsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gobii",
		Subsystem: "vfs",
		Name:      "operations_total",
		Help:      "Number of filespace structural operations",
	},
	[]string{"operation"},
)

// VFSCascadeRows is the number of rows affected by trash/restore cascades
// and descendant path rewrites.
var VFSCascadeRows = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gobii",
		Subsystem: "vfs",
		Name:      "cascade_rows_total",
		Help:      "Number of rows affected by cascades and path rewrites",
	},
	[]string{"operation"},
)

func init() {
	prometheus.MustRegister(
		VFSOpsCounter,
		VFSCascadeRows,
	)
}
