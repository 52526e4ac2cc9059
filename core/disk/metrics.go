package disk

import (
	"github.com/bmyte/jagcache/lib/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	groupsRead = metrics.Factory().NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "disk",
		Name:      "groups_read_total",
		Help:      "Groups read from the local store.",
	})
	groupsWritten = metrics.Factory().NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "disk",
		Name:      "groups_written_total",
		Help:      "Groups appended to the local store.",
	})
	sectorsWritten = metrics.Factory().NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "disk",
		Name:      "sectors_written_total",
		Help:      "Sectors appended to the payload log.",
	})
)
