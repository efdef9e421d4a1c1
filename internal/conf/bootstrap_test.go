package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBootstrap_Defaults(t *testing.T) {
	// Create a minimal valid config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `server:
  http:
    addr: :8080
data:
  redis:
    addr: 127.0.0.1:6379
bridge:
  primary:
    endpoint: ws://upstream.example.com/bridge
  secondary:
    endpoint: https://upstream.example.com/api
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Load configuration
	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Verify server defaults
	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, "tcp", bc.Server.Http.Network)
	assert.Equal(t, 30*time.Second, bc.Server.Http.Timeout.AsDuration())

	// Verify data defaults
	assert.Equal(t, "mysql", bc.Data.Database.Driver)
	assert.Equal(t, "127.0.0.1:6379", bc.Data.Redis.Addr)
	assert.Equal(t, "tcp", bc.Data.Redis.Network)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout.AsDuration())
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.WriteTimeout.AsDuration())

	// Verify channel defaults apply to both channels
	for _, ch := range []*Bridge_Channel{bc.Bridge.Primary, bc.Bridge.Secondary} {
		assert.Equal(t, 10*time.Second, ch.HandshakeTimeout.AsDuration())
		assert.Equal(t, 15*time.Second, ch.CallTimeout.AsDuration())
		assert.Equal(t, 30*time.Second, ch.HeartbeatInterval.AsDuration())
		assert.Equal(t, 90*time.Second, ch.HeartbeatTimeout.AsDuration())
		assert.Equal(t, int32(5), ch.MaxReconnectAttempts)
		assert.Equal(t, time.Second, ch.ReconnectBaseDelay.AsDuration())
		assert.Equal(t, 60*time.Second, ch.ReconnectMaxDelay.AsDuration())
	}
	assert.Equal(t, "ws://upstream.example.com/bridge", bc.Bridge.Primary.Endpoint)
	assert.Equal(t, "https://upstream.example.com/api", bc.Bridge.Secondary.Endpoint)

	// Verify breaker defaults
	assert.Equal(t, int32(3), bc.Bridge.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, bc.Bridge.Breaker.ResetTimeout.AsDuration())
	assert.Equal(t, int32(3), bc.Bridge.Breaker.SuccessQuota)

	// Verify queue defaults
	assert.Equal(t, "redis", bc.Bridge.Queue.Store)
	assert.Equal(t, int32(100), bc.Bridge.Queue.Capacity)
	assert.Equal(t, int32(5), bc.Bridge.Queue.MaxAttempts)
	assert.Equal(t, "relaylane", bc.Bridge.Queue.KeyPrefix)

	// Verify log defaults
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
	assert.Equal(t, "production", bc.Log.Env)
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectedVal func(*Bootstrap) bool
		description string
	}{
		{
			name: "override_http_addr",
			envVars: map[string]string{
				"RELAYLANE_SERVER_HTTP_ADDR": ":9999",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Server.Http.Addr == ":9999"
			},
			description: "RELAYLANE_SERVER_HTTP_ADDR should override default :8080",
		},
		{
			name: "override_redis_addr",
			envVars: map[string]string{
				"RELAYLANE_DATA_REDIS_ADDR": "redis.example.com:6379",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Data.Redis.Addr == "redis.example.com:6379"
			},
			description: "RELAYLANE_DATA_REDIS_ADDR should override default",
		},
		{
			name: "override_log_level",
			envVars: map[string]string{
				"RELAYLANE_LOG_LEVEL": "debug",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Log.Level == "debug"
			},
			description: "RELAYLANE_LOG_LEVEL should override default info",
		},
		{
			name: "override_primary_endpoint",
			envVars: map[string]string{
				"RELAYLANE_BRIDGE_PRIMARY_ENDPOINT": "wss://edge.example.com/bridge",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Bridge.Primary.Endpoint == "wss://edge.example.com/bridge"
			},
			description: "RELAYLANE_BRIDGE_PRIMARY_ENDPOINT should override default",
		},
		{
			name: "override_auth_token",
			envVars: map[string]string{
				"RELAYLANE_AUTH_TOKEN": "rl-management-token",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Auth.Token == "rl-management-token"
			},
			description: "RELAYLANE_AUTH_TOKEN should populate auth.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create minimal config file
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")

			configContent := `server:
  http:
    addr: :8080
data:
  redis:
    addr: 127.0.0.1:6379
`
			err := os.WriteFile(configPath, []byte(configContent), 0644)
			require.NoError(t, err)

			// Set environment variables
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			// Load configuration
			bc, err := NewBootstrap(configPath)
			require.NoError(t, err, tt.description)
			require.NotNil(t, bc)

			// Verify expected override
			assert.True(t, tt.expectedVal(bc), tt.description)
		})
	}
}

func TestNewBootstrap_SecretEnvAliases(t *testing.T) {
	// Unprefixed aliases for deployment secrets
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/relaylane")
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")

	bc, err := NewBootstrap("")
	require.NoError(t, err)
	require.NotNil(t, bc)

	assert.Equal(t, "user:pass@tcp(localhost:3306)/relaylane", bc.Data.Database.Source)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", bc.Auth.Encryption.Key)
}

func TestNewBootstrap_InvalidValues(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		expectedError string
	}{
		{
			name: "primary_endpoint_wrong_scheme",
			configContent: `bridge:
  primary:
    endpoint: http://upstream.example.com/bridge
`,
			expectedError: "unsupported websocket scheme",
		},
		{
			name: "secondary_endpoint_wrong_scheme",
			configContent: `bridge:
  secondary:
    endpoint: ws://upstream.example.com/api
`,
			expectedError: "unsupported http scheme",
		},
		{
			name: "invalid_proxy_scheme",
			configContent: `bridge:
  primary:
    proxy_url: ftp://proxy.example.com:21
`,
			expectedError: "unsupported proxy scheme",
		},
		{
			name: "unknown_queue_store",
			configContent: `bridge:
  queue:
    store: kafka
`,
			expectedError: "invalid bridge.queue.store",
		},
		{
			name: "mysql_store_without_dsn",
			configContent: `bridge:
  queue:
    store: mysql
`,
			expectedError: "data.database.source (MYSQL_DSN",
		},
		{
			name: "non_positive_queue_capacity",
			configContent: `bridge:
  queue:
    capacity: 0
`,
			expectedError: "bridge.queue.capacity must be positive",
		},
		{
			name: "short_encryption_key",
			configContent: `auth:
  encryption:
    key: too-short
`,
			expectedError: "auth.encryption.key must be 32 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")

			err := os.WriteFile(configPath, []byte(tt.configContent), 0644)
			require.NoError(t, err)

			// Clear secret aliases so prior shell state cannot mask a failure
			os.Unsetenv("MYSQL_DSN")
			os.Unsetenv("RELAYLANE_DATA_DATABASE_SOURCE")
			os.Unsetenv("ENCRYPTION_KEY")
			os.Unsetenv("RELAYLANE_AUTH_ENCRYPTION_KEY")

			bc, err := NewBootstrap(configPath)
			assert.Error(t, err, "Expected validation error")
			assert.Nil(t, bc, "Bootstrap should be nil when validation fails")
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestNewBootstrap_ConfigFileNotFound(t *testing.T) {
	// Try to load non-existent config file
	bc, err := NewBootstrap("/non/existent/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, bc)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestNewBootstrap_EmptyConfigPath(t *testing.T) {
	// Load with empty config path (should use defaults + env vars)
	bc, err := NewBootstrap("")
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Verify defaults were applied
	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, "ws://127.0.0.1:9100/bridge", bc.Bridge.Primary.Endpoint)
	assert.Equal(t, "http://127.0.0.1:9200", bc.Bridge.Secondary.Endpoint)
	assert.Equal(t, "redis", bc.Bridge.Queue.Store)
}

func TestNewBootstrap_PriorityOrder(t *testing.T) {
	// Create config file with one value
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `server:
  http:
    addr: :7777
data:
  redis:
    addr: 127.0.0.1:6379
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Set environment variable that should override file value
	t.Setenv("RELAYLANE_SERVER_HTTP_ADDR", ":8888")

	// Load configuration
	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Environment variable should win over file value
	assert.Equal(t, ":8888", bc.Server.Http.Addr, "Environment variable should override config file")
}

func TestValidate_AllFieldsPresent(t *testing.T) {
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{Addr: ":8080"},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: "mysql",
				Source: "user:pass@tcp(localhost:3306)/relaylane",
			},
			Redis: &Data_Redis{Addr: "127.0.0.1:6379"},
		},
		Bridge: &Bridge{
			Primary:   &Bridge_Channel{Endpoint: "wss://upstream.example.com/bridge"},
			Secondary: &Bridge_Channel{Endpoint: "https://upstream.example.com/api"},
			Breaker:   &Bridge_Breaker{FailureThreshold: 3, SuccessQuota: 3},
			Queue:     &Bridge_Queue{Store: "mysql", Capacity: 100, MaxAttempts: 5},
		},
		Auth: &Auth{
			Token:      "rl-management-token",
			Encryption: &Auth_Encryption{Key: "0123456789abcdef0123456789abcdef"},
		},
		Log: &Log{
			Level:  "info",
			Format: "json",
		},
	}

	err := Validate(bc)
	assert.NoError(t, err)
}

func TestValidate_MissingEndpoints(t *testing.T) {
	err := Validate(&Bootstrap{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing required configuration fields")
	assert.Contains(t, err.Error(), "bridge.primary.endpoint")
	assert.Contains(t, err.Error(), "bridge.secondary.endpoint")
}
