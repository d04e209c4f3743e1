package config

import "github.com/spf13/viper"

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.readTimeout", 15)
	viper.SetDefault("server.writeTimeout", 15)
	viper.SetDefault("server.staticDir", "./public")

	// WebSocket
	viper.SetDefault("websocket.maxConnections", 10000)
	viper.SetDefault("websocket.messageSizeLimit", 4096)
	viper.SetDefault("websocket.handshakeTimeout", 10)
	viper.SetDefault("websocket.pingInterval", 25)
	viper.SetDefault("websocket.pongTimeout", 30)
	viper.SetDefault("websocket.writeTimeout", 10)
	viper.SetDefault("websocket.maxWriteRetries", 3)

	// Session lifecycle
	viper.SetDefault("session.cleanupInterval", 300)
	viper.SetDefault("session.idleExpiry", 600)

	// Broker mirror (off unless configured)
	viper.SetDefault("broker.type", "none")
	viper.SetDefault("broker.redis.address", "localhost:6379")
	viper.SetDefault("broker.redis.db", 0)
	viper.SetDefault("broker.redis.poolSize", 100)
	viper.SetDefault("broker.redis.poolTimeout", 5)
	viper.SetDefault("broker.kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("broker.kafka.groupID", "padlink-relay")

	// Metrics
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")
}
