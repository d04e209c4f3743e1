// Package broker mirrors the relay's broadcast stream to a message broker
// and ingests engine feedback published there, for deployments where the
// game engine is not attached over a websocket.
package broker

import "context"

// Channel names shared with external consumers.
const (
	EventsChannel   = "relay-events"
	FeedbackChannel = "relay-feedback"
)

// Message is the envelope carried over the broker. PlayerID is empty for
// events not tied to a player (e.g. a ping from an unregistered
// connection); Data holds the relay event or feedback payload as JSON.
type Message struct {
	PlayerID string `json:"player_id,omitempty"`
	ServerID string `json:"server_id"`
	Data     string `json:"data"`
}

// MessageBroker is the pluggable transport behind the mirror. Implemented
// by RedisBroker and KafkaBroker.
type MessageBroker interface {
	Publish(ctx context.Context, channel string, message Message) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
	Close() error
	Type() string
}
