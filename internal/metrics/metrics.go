// Package metrics holds the Prometheus instruments of the flow engine.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// saves counts Save calls by publish flag and result
	saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flow_saves_total",
		Help: "Flow save/publish attempts by publish flag and result",
	}, []string{"publish", "result"})

	// validationFailures counts rejected graphs by rule
	validationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flow_validation_failures_total",
		Help: "Rejected node sets by violated rule",
	}, []string{"kind"})

	lockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flow_lock_conflicts_total",
		Help: "Authoring requests refused because another editor holds the lock",
	})

	// turns counts conversation turns by mode and result
	turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flow_conversation_turns_total",
		Help: "Conversation turns by mode and result",
	}, []string{"mode", "result"})
)

// ObserveSave records the outcome of one save.
func ObserveSave(publish bool, result string) {
	saves.WithLabelValues(strconv.FormatBool(publish), result).Inc()
}

// ValidationFailure records a rejected node set.
func ValidationFailure(kind string) {
	validationFailures.WithLabelValues(kind).Inc()
}

// LockConflict records a refused lock acquisition.
func LockConflict() { lockConflicts.Inc() }

// ObserveTurn records one conversation turn.
func ObserveTurn(mode, result string) {
	turns.WithLabelValues(mode, result).Inc()
}
