package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/broker"
	"github.com/padlink-dev/padlink/config"
	"github.com/padlink-dev/padlink/metrics"
	"github.com/padlink-dev/padlink/registry"
	"github.com/padlink-dev/padlink/relay"
	"github.com/padlink-dev/padlink/server"
	"github.com/padlink-dev/padlink/services"
	"github.com/padlink-dev/padlink/session"
	"github.com/padlink-dev/padlink/websocket"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := config.Initialize(env); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}
	cfg := config.Get()

	// Each relay instance gets a unique id so broker consumers can tell
	// instances apart.
	serverID := uuid.New().String()
	log.Info().Str("server_id", serverID).Str("env", env).Msg("Starting relay instance")

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	connRegistry := registry.New()
	store := session.NewStore()
	hub := websocket.NewHub()

	// The websocket hub is always the primary sink; a broker mirror is
	// added when configured.
	sinks := relay.MultiSink{hub}

	var messageBroker broker.MessageBroker
	switch strings.ToLower(cfg.Broker.Type) {
	case "none":
		log.Info().Msg("Broker mirroring disabled")
	case "redis":
		redisClient, err := services.NewRedisClient(&cfg.Broker.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		messageBroker = broker.NewRedisBroker(redisClient)
	case "kafka":
		var err error
		messageBroker, err = broker.NewKafkaBroker(cfg.Broker.Kafka.Brokers, cfg.Broker.Kafka.GroupID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka broker")
		}
	default:
		// Caught by config validation; checked again as a safeguard.
		log.Fatal().Str("type", cfg.Broker.Type).Msg("Invalid broker type")
	}

	var brokerSink *broker.Sink
	if messageBroker != nil {
		defer messageBroker.Close()
		log.Info().Str("type", messageBroker.Type()).Msg("Broker mirroring enabled")
		brokerSink = broker.NewSink(messageBroker, serverID)
		sinks = append(sinks, brokerSink)
	}

	router := relay.NewRouter(connRegistry, store, sinks)

	if messageBroker != nil {
		if err := broker.ListenForFeedback(ctx, messageBroker, router); err != nil {
			log.Fatal().Err(err).Msg("Failed to start broker feedback listener")
		}
	}

	// Idle player sessions are swept for the lifetime of the process.
	sweeper := session.NewSweeper(store,
		time.Duration(cfg.Session.CleanupInterval)*time.Second,
		time.Duration(cfg.Session.IdleExpiry)*time.Second,
	)
	go sweeper.Run(ctx)

	handler := websocket.NewHandler(hub, router, &cfg.WebSocket)
	srv := server.New(&cfg.Server, handler, router)
	go srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutdown signal received")

	cancel()
	hub.CloseAll("Server shutting down")
	if brokerSink != nil {
		brokerSink.Wait()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	log.Info().Msg("Relay stopped")
}
