// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration object assembled by NewBootstrap.
// Field grouping mirrors the YAML layout (server / data / bridge / auth / log).
type Bootstrap struct {
	Server *Server
	Data   *Data
	Bridge *Bridge
	Auth   *Auth
	Log    *Log
}

// Server groups the inbound transport configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the management HTTP server.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data groups backing-store configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the optional MySQL connection (queue store and
// delivery audit log). Empty Source disables it.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the Redis connection.
type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Bridge groups the connection-bridge tuning knobs.
type Bridge struct {
	Primary   *Bridge_Channel
	Secondary *Bridge_Channel
	Breaker   *Bridge_Breaker
	Queue     *Bridge_Queue
}

// Bridge_Channel configures one channel: its endpoint, liveness probing and
// reconnect policy.
type Bridge_Channel struct {
	Endpoint             string
	ProxyUrl             string
	HandshakeTimeout     *durationpb.Duration
	CallTimeout          *durationpb.Duration
	HeartbeatInterval    *durationpb.Duration
	HeartbeatTimeout     *durationpb.Duration
	MaxReconnectAttempts int32
	ReconnectBaseDelay   *durationpb.Duration
	ReconnectMaxDelay    *durationpb.Duration
}

// Bridge_Breaker configures the circuit breaker guarding the secondary channel.
type Bridge_Breaker struct {
	FailureThreshold int32
	ResetTimeout     *durationpb.Duration
	SuccessQuota     int32
}

// Bridge_Queue configures the offline queue.
type Bridge_Queue struct {
	// Store selects the persistence backend: "redis" or "mysql".
	Store       string
	Capacity    int32
	MaxAttempts int32
	KeyPrefix   string
}

// Auth groups management-API and at-rest protection settings.
type Auth struct {
	// Token, when non-empty, is required as a bearer token on management calls.
	Token      string
	Encryption *Auth_Encryption
}

// Auth_Encryption holds the optional AES-256 key for payload-at-rest
// encryption. When empty, queued payloads are stored in the clear.
type Auth_Encryption struct {
	Key string
}

// Log configures the Zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
