package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/metrics"
)

const publishTimeout = 10 * time.Second

// Sink mirrors relay broadcast events onto the events channel. It satisfies
// relay.Sink; SendTo always fails because per-connection replies never
// travel through the broker.
type Sink struct {
	broker   MessageBroker
	serverID string
	wg       sync.WaitGroup
}

func NewSink(b MessageBroker, serverID string) *Sink {
	return &Sink{
		broker:   b,
		serverID: serverID,
	}
}

func (s *Sink) SendTo(connectionID string, payload interface{}) error {
	return fmt.Errorf("broker sink does not route to connection %s", connectionID)
}

// Broadcast publishes the event asynchronously; the relay never blocks on
// broker I/O.
func (s *Sink) Broadcast(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal event for broker mirror")
		return
	}

	// Pull the player id out of the enriched payload for the partition key.
	var probe struct {
		PlayerID string `json:"playerId"`
	}
	_ = json.Unmarshal(data, &probe)

	message := Message{
		PlayerID: probe.PlayerID,
		ServerID: s.serverID,
		Data:     string(data),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.broker.Publish(ctx, EventsChannel, message); err != nil {
			log.Warn().Err(err).Msg("Failed to mirror event to broker")
			return
		}
		metrics.BrokerMessagesPublished.WithLabelValues(s.broker.Type()).Inc()
	}()
}

// Wait blocks until in-flight publishes finish, used during shutdown.
func (s *Sink) Wait() {
	s.wg.Wait()
}

// FeedbackTarget is the slice of the relay router the feedback loop needs.
type FeedbackTarget interface {
	HandleFeedback(playerID string, payload interface{}) error
}

// ListenForFeedback consumes the feedback channel and routes each message
// to the player's current connection. Messages for players hosted on other
// instances are skipped.
func ListenForFeedback(ctx context.Context, b MessageBroker, target FeedbackTarget) error {
	messages, err := b.Subscribe(ctx, FeedbackChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", FeedbackChannel, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok {
					log.Info().Msg("Broker feedback channel closed")
					return
				}
				if message.PlayerID == "" {
					continue
				}
				if err := target.HandleFeedback(message.PlayerID, json.RawMessage(message.Data)); err != nil {
					log.Debug().Str("player_id", message.PlayerID).Err(err).
						Msg("Broker feedback not delivered")
				}
			}
		}
	}()
	return nil
}
