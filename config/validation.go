package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	if c.WebSocket.MaxConnections < 1 {
		return errors.New("max connections must be positive")
	}

	if c.WebSocket.HandshakeTimeout < 1 {
		return errors.New("handshake timeout must be at least 1 second")
	}

	if c.WebSocket.PingInterval >= c.WebSocket.PongTimeout {
		return errors.New("ping interval should be less than pong timeout")
	}

	if c.Session.CleanupInterval < 1 {
		return errors.New("session cleanup interval must be at least 1 second")
	}

	if c.Session.IdleExpiry < c.Session.CleanupInterval {
		return errors.New("session idle expiry should not be shorter than the cleanup interval")
	}

	// Validate broker configuration
	switch strings.ToLower(c.Broker.Type) {
	case "none":
		// Mirroring disabled; nothing to check.
	case "redis":
		if c.Broker.Redis.Address == "" {
			return errors.New("redis address must be specified for redis broker")
		}
	case "kafka":
		if len(c.Broker.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers must be specified for kafka broker")
		}
		if c.Broker.Kafka.GroupID == "" {
			return errors.New("kafka groupID must be specified for kafka broker")
		}
	default:
		return fmt.Errorf("invalid broker type: %s. Must be 'none', 'redis' or 'kafka'", c.Broker.Type)
	}

	return nil
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "PADLINK_PORT")
	viper.BindEnv("server.staticDir", "PADLINK_STATIC_DIR")

	// WebSocket
	viper.BindEnv("websocket.maxConnections", "PADLINK_MAX_CONNECTIONS")
	viper.BindEnv("websocket.handshakeTimeout", "PADLINK_HANDSHAKE_TIMEOUT")
	viper.BindEnv("websocket.pingInterval", "PADLINK_PING_INTERVAL")
	viper.BindEnv("websocket.pongTimeout", "PADLINK_PONG_TIMEOUT")
	viper.BindEnv("websocket.writeTimeout", "PADLINK_WRITE_TIMEOUT")

	// Session lifecycle
	viper.BindEnv("session.cleanupInterval", "PADLINK_SESSION_CLEANUP_INTERVAL")
	viper.BindEnv("session.idleExpiry", "PADLINK_SESSION_IDLE_EXPIRY")

	// Broker
	viper.BindEnv("broker.type", "PADLINK_BROKER_TYPE")
	viper.BindEnv("broker.redis.address", "PADLINK_REDIS_ADDRESS")
	viper.BindEnv("broker.redis.password", "PADLINK_REDIS_PASSWORD")
	viper.BindEnv("broker.kafka.brokers", "PADLINK_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.groupID", "PADLINK_KAFKA_GROUPID")

	// Metrics
	viper.BindEnv("metrics.enabled", "PADLINK_METRICS_ENABLED")
	viper.BindEnv("metrics.port", "PADLINK_METRICS_PORT")
}
