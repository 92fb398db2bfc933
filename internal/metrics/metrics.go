// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat modes.
const (
	ModeBlocking  = "blocking"
	ModeStream    = "stream"
	ModeWebSocket = "websocket"
)

// Close paths.
const (
	CloseFunction = "function"
	CloseLiteral  = "literal"
	CloseRecover  = "recovered"
	CloseFallback = "unrecovered"
)

var (
	chatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "careerbot",
		Name:      "chat_requests_total",
		Help:      "Chat turns handled, by transport mode",
	}, []string{"mode"})

	providerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "careerbot",
		Name:      "provider_errors_total",
		Help:      "Failed provider calls, by provider",
	}, []string{"provider"})

	conversationsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "careerbot",
		Name:      "conversations_closed_total",
		Help:      "Conversations closed by the assistant, by detection path",
	}, []string{"path"})

	leadsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "careerbot",
		Name:      "leads_upserted_total",
		Help:      "Lead upserts that changed a record",
	})

	streamFragments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "careerbot",
		Name:      "stream_fragments_total",
		Help:      "Provider fragments consumed by the streaming pipeline",
	})

	replyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "careerbot",
		Name:      "reply_duration_seconds",
		Help:      "Time from request to final event, by transport mode",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"mode"})
)

// ChatRequest counts one chat turn.
func ChatRequest(mode string) { chatRequests.WithLabelValues(mode).Inc() }

// ProviderError counts one failed provider call.
func ProviderError(provider string) { providerErrors.WithLabelValues(provider).Inc() }

// ConversationClosed counts one conversation closed through path.
func ConversationClosed(path string) { conversationsClosed.WithLabelValues(path).Inc() }

// LeadUpserted counts one lead change.
func LeadUpserted() { leadsUpserted.Inc() }

// StreamFragment counts one consumed provider fragment.
func StreamFragment() { streamFragments.Inc() }

// ObserveReply records how long a reply took.
func ObserveReply(mode string, started time.Time) {
	replyLatency.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
