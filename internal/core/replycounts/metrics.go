package replycounts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var replyRepairsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fedipub",
		Subsystem: "reply_counts",
		Name:      "repairs_total",
		Help:      "Reply counter repairs by outcome (fixed, raced).",
	},
	[]string{"outcome"},
)
