package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level collectors. Helpers no-op until Register succeeds.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "service",
			Name:      "state_transitions_total",
			Help:      "Run-state transitions per worker.",
		}, []string{"name", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pricebot",
			Subsystem: "service",
			Name:      "current_state",
			Help:      "Current run state of a worker (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	toggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "service",
			Name:      "toggles_total",
			Help:      "Enable/disable changes applied to a worker.",
		}, []string{"name", "enabled"},
	)
	persistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "service",
			Name:      "persist_failures_total",
			Help:      "Failed writes of the enabled flag to the durable store.",
		}, []string{"name"},
	)
	startFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "service",
			Name:      "start_failures_total",
			Help:      "Workers that could not be registered at startup.",
		}, []string{"name"},
	)
	sleepsAborted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "service",
			Name:      "sleeps_aborted_total",
			Help:      "Sleep timers cut short by a pause.",
		}, []string{"name"},
	)
	priceChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "price",
			Name:      "checks_total",
			Help:      "Price fetches by outcome (ok, error, changed).",
		}, []string{"name", "result"},
	)
	lastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pricebot",
			Subsystem: "price",
			Name:      "last_value",
			Help:      "Last observed price.",
		}, []string{"name"},
	)
)

// Register registers all collectors with r. Subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{stateTransitions, currentState, toggles, persistFailures, startFailures, sleepsAborted, priceChecks, lastPrice}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

var states = []string{"paused", "running", "sleeping"}

// RecordTransition counts from->to and flips the current_state gauge.
func RecordTransition(name, from, to string) {
	if !regOK.Load() {
		return
	}
	if from != to {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
	for _, s := range states {
		v := 0.0
		if s == to {
			v = 1
		}
		currentState.WithLabelValues(name, s).Set(v)
	}
}

func IncToggle(name string, enabled bool) {
	if regOK.Load() {
		label := "false"
		if enabled {
			label = "true"
		}
		toggles.WithLabelValues(name, label).Inc()
	}
}

func IncPersistFailure(name string) {
	if regOK.Load() {
		persistFailures.WithLabelValues(name).Inc()
	}
}

func IncStartFailure(name string) {
	if regOK.Load() {
		startFailures.WithLabelValues(name).Inc()
	}
}

func IncSleepAborted(name string) {
	if regOK.Load() {
		sleepsAborted.WithLabelValues(name).Inc()
	}
}

func IncPriceCheck(name, result string) {
	if regOK.Load() {
		priceChecks.WithLabelValues(name, result).Inc()
	}
}

func SetLastPrice(name string, v float64) {
	if regOK.Load() {
		lastPrice.WithLabelValues(name).Set(v)
	}
}
