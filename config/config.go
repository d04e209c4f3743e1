package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Session   SessionConfig
	Broker    BrokerConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  int // Seconds
	WriteTimeout int // Seconds
	StaticDir    string
}

type WebSocketConfig struct {
	MaxConnections   int
	MessageSizeLimit int64
	HandshakeTimeout int // Seconds
	PingInterval     int // Seconds
	PongTimeout      int // Seconds
	WriteTimeout     int // Seconds
	MaxWriteRetries  int
}

// SessionConfig drives the player-session expiry machinery.
// CleanupInterval is how often idle sessions are swept; IdleExpiry is how
// long a disconnected player keeps their identity reserved for reconnection.
type SessionConfig struct {
	CleanupInterval int // Seconds
	IdleExpiry      int // Seconds
}

type BrokerConfig struct {
	Type  string // "none", "redis" or "kafka"
	Redis RedisConfig
	Kafka KafkaConfig
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	PoolSize    int
	PoolTimeout int // Seconds
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

var (
	instance *AppConfig
	once     sync.Once
)

func Initialize(env string) error {
	var initErr error
	once.Do(func() {
		viper.SetConfigName(fmt.Sprintf("config.%s", env))
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")

		viper.AutomaticEnv()
		viper.SetEnvPrefix("PADLINK")

		setDefaults()
		bindEnvVars()

		if err := viper.ReadInConfig(); err != nil {
			// A missing file is fine; defaults and env vars cover everything.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				initErr = fmt.Errorf("config file error: %w", err)
				return
			}
		}

		if err := viper.Unmarshal(&instance); err != nil {
			initErr = fmt.Errorf("config unmarshal error: %w", err)
			return
		}

		if err := instance.Validate(); err != nil {
			initErr = fmt.Errorf("config validation failed: %w", err)
			return
		}
	})
	return initErr
}

func Get() *AppConfig {
	return instance
}
