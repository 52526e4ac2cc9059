package updater

import (
	"github.com/bmyte/jagcache/lib/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	archivesUpdated = metrics.Factory().NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "updater",
		Name:      "archives_updated_total",
		Help:      "Archives whose catalog was refetched.",
	})
	groupsFetched = metrics.Factory().NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "updater",
		Name:      "groups_fetched_total",
		Help:      "Stale groups fetched and stored.",
	})
)
