package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagepilot",
		Name:      "dispatch_total",
		Help:      "Dispatched actions by kind and outcome.",
	}, []string{"kind", "outcome"})
	metricInjections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagepilot",
		Name:      "injections_total",
		Help:      "Executor injections by result.",
	}, []string{"result"})
)

func recordDispatch(kind, outcome string) {
	metricDispatches.WithLabelValues(kind, outcome).Inc()
}

func recordInjection(ok bool) {
	if ok {
		metricInjections.WithLabelValues("ok").Inc()
		return
	}
	metricInjections.WithLabelValues("error").Inc()
}
