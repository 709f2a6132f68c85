package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedipub",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Events emitted to at least one handler, by kind.",
		},
		[]string{"kind"},
	)
	handlerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedipub",
			Subsystem: "events",
			Name:      "handler_failures_total",
			Help:      "Event emissions where at least one handler failed, by kind.",
		},
		[]string{"kind"},
	)
)
