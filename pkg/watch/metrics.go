package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons reported on fskit_watch_events_dropped_total.
const (
	dropQueue     = "queue_full"
	dropDuplicate = "duplicate"
	dropDebounced = "debounced"
	dropUnmatched = "unmatched"
)

type metrics struct {
	rawEvents          *prometheus.CounterVec
	delivered          prometheus.Counter
	dropped            *prometheus.CounterVec
	registrationErrors prometheus.Counter
	backendErrors      prometheus.Counter
	watches            prometheus.Gauge
	subscriptions      prometheus.Gauge
}

// newMetrics creates the engine collectors. A nil registerer leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		rawEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fskit",
			Subsystem: "watch",
			Name:      "raw_events_total",
			Help:      "Notifications received from the backend, by kind.",
		}, []string{"kind"}),
		delivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fskit",
			Subsystem: "watch",
			Name:      "events_delivered_total",
			Help:      "Events passed to subscription handlers.",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fskit",
			Subsystem: "watch",
			Name:      "events_dropped_total",
			Help:      "Events not delivered, by reason.",
		}, []string{"reason"}),
		registrationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fskit",
			Subsystem: "watch",
			Name:      "registration_errors_total",
			Help:      "Watches the backend refused to install.",
		}),
		backendErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fskit",
			Subsystem: "watch",
			Name:      "backend_errors_total",
			Help:      "Errors reported by the notification backend.",
		}),
		watches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "fskit",
			Subsystem: "watch",
			Name:      "active_watches",
			Help:      "Directories currently watched by the backend.",
		}),
		subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "fskit",
			Subsystem: "watch",
			Name:      "live_subscriptions",
			Help:      "Subscriptions currently receiving events.",
		}),
	}
}
