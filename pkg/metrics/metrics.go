package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Deliveries counts every delivery attempt by channel and outcome.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Total number of delivery attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"content_type"},
	)

	NotificationsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_notifications_deduplicated_total",
			Help: "Total number of notifications dropped because an unread one already existed",
		},
		[]string{"content_type"},
	)

	PushTokensPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_push_tokens_pruned_total",
			Help: "Total number of device tokens deleted after an error ticket",
		},
	)

	DigestEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_digest_emails_total",
			Help: "Total number of digest emails by frequency and outcome",
		},
		[]string{"frequency", "status"},
	)

	DigestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_digest_run_duration_seconds",
			Help:    "Duration of email digest runs",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"frequency"},
	)
)

// Status turns a success flag into a label value.
func Status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
