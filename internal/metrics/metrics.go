package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inspectr",
		Subsystem: "process",
		Name:      "launches_total",
		Help:      "Number of successful debuggee launches.",
	})
	exits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inspectr",
		Subsystem: "process",
		Name:      "exits_total",
		Help:      "Number of observed debuggee exits.",
	})
	runningProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inspectr",
		Subsystem: "process",
		Name:      "running",
		Help:      "Current number of live managed debuggees.",
	})
	attaches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inspectr",
		Subsystem: "session",
		Name:      "attaches_total",
		Help:      "Number of successful debugger attaches.",
	})
	detaches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inspectr",
		Subsystem: "session",
		Name:      "detaches_total",
		Help:      "Number of session detaches (explicit, error or process exit).",
	})
	breakpointsSet = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inspectr",
		Subsystem: "session",
		Name:      "breakpoints_set_total",
		Help:      "Number of breakpoints registered with the debuggee.",
	})
	protocolEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspectr",
		Subsystem: "session",
		Name:      "protocol_events_total",
		Help:      "Inspector protocol events observed, by kind.",
	}, []string{"kind"})
	sessionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "inspectr",
		Subsystem: "session",
		Name:      "state",
		Help:      "Current session state (1 = active state, 0 = inactive).",
	}, []string{"state"})
)

// Register registers all metrics with the provided registerer. Safe to call
// multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{launches, exits, runningProcesses, attaches, detaches, breakpointsSet, protocolEvents, sessionState}
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

// Handler serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncLaunch() {
	if regOK.Load() {
		launches.Inc()
	}
}

func IncExit() {
	if regOK.Load() {
		exits.Inc()
	}
}

func SetRunningProcesses(n int) {
	if regOK.Load() {
		runningProcesses.Set(float64(n))
	}
}

func IncAttach() {
	if regOK.Load() {
		attaches.Inc()
	}
}

func IncDetach() {
	if regOK.Load() {
		detaches.Inc()
	}
}

func IncBreakpointSet() {
	if regOK.Load() {
		breakpointsSet.Inc()
	}
}

func IncProtocolEvent(kind string) {
	if regOK.Load() {
		protocolEvents.WithLabelValues(kind).Inc()
	}
}

func SetSessionState(state string, active bool) {
	if regOK.Load() {
		v := 0.0
		if active {
			v = 1
		}
		sessionState.WithLabelValues(state).Set(v)
	}
}
