package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"

	"RelayLane/pkg/endpoint"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with RELAYLANE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Commonly bound environment variables:
//   - MYSQL_DSN or RELAYLANE_DATA_DATABASE_SOURCE: MySQL connection string
//   - ENCRYPTION_KEY or RELAYLANE_AUTH_ENCRYPTION_KEY: payload encryption key
//   - RELAYLANE_AUTH_TOKEN: management API bearer token
//   - RELAYLANE_BRIDGE_PRIMARY_ENDPOINT / RELAYLANE_BRIDGE_SECONDARY_ENDPOINT
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with RELAYLANE_ prefix
	v.SetEnvPrefix("RELAYLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables for secrets and endpoints
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "RELAYLANE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "RELAYLANE_DATA_REDIS_ADDR")
	_ = v.BindEnv("auth.token", "RELAYLANE_AUTH_TOKEN")
	_ = v.BindEnv("auth.encryption.key", "ENCRYPTION_KEY", "RELAYLANE_AUTH_ENCRYPTION_KEY")
	_ = v.BindEnv("bridge.primary.endpoint", "RELAYLANE_BRIDGE_PRIMARY_ENDPOINT")
	_ = v.BindEnv("bridge.secondary.endpoint", "RELAYLANE_BRIDGE_SECONDARY_ENDPOINT")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Bridge: &Bridge{
			Primary:   channelConf(v, "bridge.primary"),
			Secondary: channelConf(v, "bridge.secondary"),
			Breaker: &Bridge_Breaker{
				FailureThreshold: v.GetInt32("bridge.breaker.failure_threshold"),
				ResetTimeout:     durationpb.New(v.GetDuration("bridge.breaker.reset_timeout")),
				SuccessQuota:     v.GetInt32("bridge.breaker.success_quota"),
			},
			Queue: &Bridge_Queue{
				Store:       v.GetString("bridge.queue.store"),
				Capacity:    v.GetInt32("bridge.queue.capacity"),
				MaxAttempts: v.GetInt32("bridge.queue.max_attempts"),
				KeyPrefix:   v.GetString("bridge.queue.key_prefix"),
			},
		},
		Auth: &Auth{
			Token: v.GetString("auth.token"),
			Encryption: &Auth_Encryption{
				Key: v.GetString("auth.encryption.key"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// channelConf reads one bridge.<channel> subtree.
func channelConf(v *viper.Viper, prefix string) *Bridge_Channel {
	return &Bridge_Channel{
		Endpoint:             v.GetString(prefix + ".endpoint"),
		ProxyUrl:             v.GetString(prefix + ".proxy_url"),
		HandshakeTimeout:     durationpb.New(v.GetDuration(prefix + ".handshake_timeout")),
		CallTimeout:          durationpb.New(v.GetDuration(prefix + ".call_timeout")),
		HeartbeatInterval:    durationpb.New(v.GetDuration(prefix + ".heartbeat_interval")),
		HeartbeatTimeout:     durationpb.New(v.GetDuration(prefix + ".heartbeat_timeout")),
		MaxReconnectAttempts: v.GetInt32(prefix + ".max_reconnect_attempts"),
		ReconnectBaseDelay:   durationpb.New(v.GetDuration(prefix + ".reconnect_base_delay")),
		ReconnectMaxDelay:    durationpb.New(v.GetDuration(prefix + ".reconnect_max_delay")),
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required only for the mysql queue store

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Bridge defaults: both channels share the same reconnect policy out of the box
	for _, ch := range []string{"bridge.primary", "bridge.secondary"} {
		v.SetDefault(ch+".handshake_timeout", 10*time.Second)
		v.SetDefault(ch+".call_timeout", 15*time.Second)
		v.SetDefault(ch+".heartbeat_interval", 30*time.Second)
		v.SetDefault(ch+".heartbeat_timeout", 90*time.Second)
		v.SetDefault(ch+".max_reconnect_attempts", 5)
		v.SetDefault(ch+".reconnect_base_delay", time.Second)
		v.SetDefault(ch+".reconnect_max_delay", 60*time.Second)
	}
	v.SetDefault("bridge.primary.endpoint", "ws://127.0.0.1:9100/bridge")
	v.SetDefault("bridge.secondary.endpoint", "http://127.0.0.1:9200")

	v.SetDefault("bridge.breaker.failure_threshold", 3)
	v.SetDefault("bridge.breaker.reset_timeout", 60*time.Second)
	v.SetDefault("bridge.breaker.success_quota", 3)

	v.SetDefault("bridge.queue.store", "redis")
	v.SetDefault("bridge.queue.capacity", 100)
	v.SetDefault("bridge.queue.max_attempts", 5)
	v.SetDefault("bridge.queue.key_prefix", "relaylane")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.env", "production")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing or invalid fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Bridge == nil || bc.Bridge.Primary == nil || bc.Bridge.Primary.Endpoint == "" {
		missingFields = append(missingFields, "bridge.primary.endpoint")
	} else {
		if err := endpoint.ValidateWebSocket(bc.Bridge.Primary.Endpoint); err != nil {
			return fmt.Errorf("bridge.primary.endpoint: %w", err)
		}
		if bc.Bridge.Primary.ProxyUrl != "" {
			if err := endpoint.ValidateProxy(bc.Bridge.Primary.ProxyUrl); err != nil {
				return fmt.Errorf("bridge.primary.proxy_url: %w", err)
			}
		}
	}
	if bc.Bridge == nil || bc.Bridge.Secondary == nil || bc.Bridge.Secondary.Endpoint == "" {
		missingFields = append(missingFields, "bridge.secondary.endpoint")
	} else {
		if err := endpoint.ValidateHTTP(bc.Bridge.Secondary.Endpoint); err != nil {
			return fmt.Errorf("bridge.secondary.endpoint: %w", err)
		}
		if bc.Bridge.Secondary.ProxyUrl != "" {
			if err := endpoint.ValidateProxy(bc.Bridge.Secondary.ProxyUrl); err != nil {
				return fmt.Errorf("bridge.secondary.proxy_url: %w", err)
			}
		}
	}

	if bc.Bridge != nil && bc.Bridge.Queue != nil {
		switch bc.Bridge.Queue.Store {
		case "redis":
			// default backend, nothing extra required
		case "mysql":
			if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
				missingFields = append(missingFields, "data.database.source (MYSQL_DSN, required for the mysql queue store)")
			}
		default:
			return fmt.Errorf("invalid bridge.queue.store %q (expected redis or mysql)", bc.Bridge.Queue.Store)
		}
		if bc.Bridge.Queue.Capacity <= 0 {
			return fmt.Errorf("bridge.queue.capacity must be positive, got %d", bc.Bridge.Queue.Capacity)
		}
	}

	// Encryption key, when provided, must be exactly 32 bytes (AES-256)
	if bc.Auth != nil && bc.Auth.Encryption != nil && bc.Auth.Encryption.Key != "" {
		if len(bc.Auth.Encryption.Key) != 32 {
			return fmt.Errorf("auth.encryption.key must be 32 bytes, got %d", len(bc.Auth.Encryption.Key))
		}
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
