// Package telemetry provides Prometheus metrics, correlation-id aware
// logging helpers, and optional OpenTelemetry tracing.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatLinesReceived   prometheus.Counter
	MessagesSent        prometheus.Counter
	EventsDispatched    prometheus.Counter
	HandlerErrors       prometheus.Counter
	CommandsRouted      prometheus.Counter
	CommandErrors       prometheus.Counter
	ChatReconnects      prometheus.Counter
	EventSubReconnects  prometheus.Counter
	HelixRequests       prometheus.Counter
	HelixRequestErrors  prometheus.Counter
	NotificationsParsed prometheus.Counter

	// Histograms (seconds)
	HelixRequestDuration prometheus.Observer

	// Gauges
	ChatConnectedGauge     prometheus.Gauge // 1=joined,0=not
	EventSubConnectedGauge prometheus.Gauge
	ChattersGauge          prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatLinesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_chat_lines_received_total", Help: "Chat protocol lines received"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_messages_sent_total", Help: "Outbound chat messages sent"})
		EventsDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_events_dispatched_total", Help: "Events fanned out to handlers"})
		HandlerErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_handler_errors_total", Help: "Event handler failures contained at the dispatch boundary"})
		CommandsRouted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_commands_routed_total", Help: "Chat commands routed to a handler"})
		CommandErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_command_errors_total", Help: "Command handler failures"})
		ChatReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_chat_reconnects_total", Help: "Chat socket reconnection attempts"})
		EventSubReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_eventsub_reconnects_total", Help: "EventSub socket reconnection attempts"})
		HelixRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_helix_requests_total", Help: "Helix REST requests issued"})
		HelixRequestErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_helix_request_errors_total", Help: "Helix REST requests that returned an error"})
		NotificationsParsed = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_notifications_parsed_total", Help: "EventSub notification frames parsed"})
		HelixRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_helix_request_duration_seconds", Help: "Helix request duration seconds", Buckets: prometheus.DefBuckets})
		ChatConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_chat_connected", Help: "Chat socket joined=1 otherwise 0"})
		EventSubConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_eventsub_connected", Help: "EventSub socket subscribed=1 otherwise 0"})
		ChattersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_chatters", Help: "Chatters cached for the active streamer"})
	})
}

// The Inc helpers are nil-safe so packages can record metrics without caring
// whether Init ran (it does not in unit tests).

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

func IncChatLine()           { inc(ChatLinesReceived) }
func IncMessageSent()        { inc(MessagesSent) }
func IncEventDispatched()    { inc(EventsDispatched) }
func IncHandlerError()       { inc(HandlerErrors) }
func IncCommandRouted()      { inc(CommandsRouted) }
func IncCommandError()       { inc(CommandErrors) }
func IncChatReconnect()      { inc(ChatReconnects) }
func IncEventSubReconnect()  { inc(EventSubReconnects) }
func IncHelixRequest()       { inc(HelixRequests) }
func IncHelixRequestError()  { inc(HelixRequestErrors) }
func IncNotificationParsed() { inc(NotificationsParsed) }

// SetChatConnected sets the chat gauge to 1 if joined else 0.
func SetChatConnected(joined bool) {
	if ChatConnectedGauge != nil {
		if joined {
			ChatConnectedGauge.Set(1)
		} else {
			ChatConnectedGauge.Set(0)
		}
	}
}

// SetEventSubConnected sets the eventsub gauge to 1 if subscribed else 0.
func SetEventSubConnected(subscribed bool) {
	if EventSubConnectedGauge != nil {
		if subscribed {
			EventSubConnectedGauge.Set(1)
		} else {
			EventSubConnectedGauge.Set(0)
		}
	}
}

// SetChatters records the current chatter-cache size.
func SetChatters(n int) {
	if ChattersGauge != nil {
		ChattersGauge.Set(float64(n))
	}
}

// ObserveHelixDuration records one Helix request duration.
func ObserveHelixDuration(d time.Duration) {
	if HelixRequestDuration != nil {
		HelixRequestDuration.Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
