package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_active",
		Help: "The current number of open controller connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_connections_total",
		Help: "The total number of controller connections accepted.",
	})
	ActiveConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_consumers_active",
		Help: "The current number of attached engine consumers.",
	})

	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_active",
		Help: "The current number of player sessions, bound and idle.",
	})
	Reconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_reconnections_total",
		Help: "The total number of players that reclaimed an existing identity.",
	})
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_sessions_evicted_total",
		Help: "The total number of idle player sessions evicted by the sweeper.",
	})

	// Relay metrics
	InputsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_inputs_relayed_total",
		Help: "The total number of input messages stamped and broadcast.",
	})
	OrphanInputsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_orphan_inputs_dropped_total",
		Help: "The total number of inputs dropped because the connection had no session.",
	})
	PingsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_pings_received_total",
		Help: "The total number of keep-alive pings received from controllers.",
	})

	// Broker metrics
	BrokerMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_messages_published_total",
		Help: "The total number of relay events mirrored to the message broker.",
	}, []string{"broker_type"})
	BrokerPublishRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_publish_retries_total",
		Help: "The total number of retries when publishing to the message broker.",
	}, []string{"broker_type"})
)

// StartServer starts the HTTP server for Prometheus metrics.
func StartServer(port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Str("path", path).Msg("Starting metrics server")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}()
}
