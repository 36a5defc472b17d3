package pagestate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagepilot",
		Name:      "captures_total",
		Help:      "Page state captures by result.",
	}, []string{"result"})
	metricScreenshotsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pagepilot",
		Name:      "screenshots_skipped_total",
		Help:      "Screenshots omitted because the capture rate limit was hit.",
	})
)
