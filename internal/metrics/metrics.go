package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Full reloads triggered by the realtime reconciler or a caller
	ReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evalboard",
			Subsystem: "cache",
			Name:      "reloads_total",
			Help:      "Total entity reloads",
		},
		[]string{"kind", "status"},
	)

	// In-place merges of single realtime records
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evalboard",
			Subsystem: "cache",
			Name:      "merges_total",
			Help:      "Total realtime records merged without a reload",
		},
		[]string{"kind", "result"},
	)

	EventsIgnoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evalboard",
			Subsystem: "realtime",
			Name:      "events_ignored_total",
			Help:      "Realtime events dropped because they belonged to another project or a closed channel",
		},
		[]string{"kind"},
	)

	ChannelsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "evalboard",
			Subsystem: "realtime",
			Name:      "channels_open",
			Help:      "Realtime channels currently subscribed",
		},
		[]string{"kind"},
	)

	SubscribeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evalboard",
			Subsystem: "realtime",
			Name:      "subscribe_failures_total",
			Help:      "Realtime channel open failures",
		},
		[]string{"kind"},
	)

	ChannelCloseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evalboard",
			Subsystem: "realtime",
			Name:      "channel_close_failures_total",
			Help:      "Realtime channel close errors",
		},
		[]string{"kind"},
	)

	SnapshotSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evalboard",
			Subsystem: "snapshot",
			Name:      "saves_total",
			Help:      "Snapshot writes",
		},
		[]string{"status"},
	)

	ProjectSwitchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "evalboard",
			Subsystem: "cache",
			Name:      "project_switches_total",
			Help:      "Project switches applied after debouncing",
		},
	)

	UploadItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evalboard",
			Subsystem: "uploads",
			Name:      "items_total",
			Help:      "Upload items by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
