package topics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	topicRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedipub",
			Subsystem: "topics",
			Name:      "reconciliations_total",
			Help:      "Topic reconciliations by outcome.",
		},
		[]string{"outcome"},
	)

	topicMappingWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedipub",
			Subsystem: "topics",
			Name:      "mapping_writes_total",
			Help:      "Account/topic mapping rows written.",
		},
		[]string{"op"},
	)
)
