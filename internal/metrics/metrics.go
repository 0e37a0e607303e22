// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// delivery results
const (
	Delivered = "delivered"
	Offline   = "offline"
	Failed    = "failed"
	Dropped   = "dropped"
	Published = "published"
)

var (
	ThreadsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gopherchat_threads_created_total",
		Help: "Chat threads created",
	})

	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gopherchat_messages_appended_total",
		Help: "Messages persisted",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gopherchat_deliveries_total",
		Help: "Real-time delivery attempts by result",
	}, []string{"result"})

	FanoutPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gopherchat_fanout_publishes_total",
		Help: "Messages handed to the cross-instance bus by result",
	}, []string{"result"})

	OnlineConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gopherchat_online_connections",
		Help: "Registered presence connections",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gopherchat_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
