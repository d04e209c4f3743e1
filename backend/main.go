// A stand-in game engine for development: consumes the mirrored relay
// event stream from Redis and answers every input with a feedback message,
// so the full controller -> relay -> engine -> controller loop can be
// exercised without a real engine.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/broker"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	redisAddr := getEnv("REDIS_ADDRESS", "localhost:6379")
	log.Info().Str("addr", redisAddr).Msg("Connecting to Redis")

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := rdb.Subscribe(ctx, broker.EventsChannel)
	defer pubsub.Close()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	log.Info().Str("channel", broker.EventsChannel).Msg("Engine simulator listening")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Engine simulator shutting down")
			return
		case raw, ok := <-pubsub.Channel():
			if !ok {
				return
			}

			var message broker.Message
			if err := json.Unmarshal([]byte(raw.Payload), &message); err != nil {
				log.Warn().Err(err).Msg("Discarding undecodable event")
				continue
			}

			var event map[string]interface{}
			if err := json.Unmarshal([]byte(message.Data), &event); err != nil {
				continue
			}
			log.Info().Str("player_id", message.PlayerID).
				Interface("event", event).Msg("Event received")

			// Presence events need no answer; inputs get an ack so the
			// controller can show round-trip latency.
			if _, isPresence := event["kind"]; isPresence || message.PlayerID == "" {
				continue
			}

			ack := broker.Message{
				PlayerID: message.PlayerID,
				ServerID: message.ServerID,
				Data:     `{"ack":true}`,
			}
			payload, err := json.Marshal(ack)
			if err != nil {
				continue
			}
			if err := rdb.Publish(ctx, broker.FeedbackChannel, payload).Err(); err != nil {
				log.Warn().Err(err).Msg("Failed to publish feedback")
			}
		}
	}
}
