// Package metrics exposes the process counters served on the health
// listener's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listkeeper_inbound_events_total",
		Help: "Inbound gateway events by kind (message, membership).",
	}, []string{"kind"})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listkeeper_commands_total",
		Help: "Recognized commands by name and outcome.",
	}, []string{"command", "result"})

	TriggersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listkeeper_triggers_fired_total",
		Help: "Stored triggers matched and sent.",
	})

	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listkeeper_send_errors_total",
		Help: "Transport send failures.",
	})
)
