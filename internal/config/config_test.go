package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Client: ClientConfig{
			QueryTimeout:       5 * time.Second,
			PublishTimeout:     5 * time.Second,
			DialTimeout:        3 * time.Second,
			PingInterval:       30 * time.Second,
			SubscriptionBuffer: 256,
			SeenCacheSize:      100000,
			ProfileTTL:         15 * time.Minute,
			SearchWindow:       200,
			MaxDialsPerMinute:  12,
		},
		Relays: RelaysConfig{
			URLs: []string{"wss://relay.example.com"},
		},
		Storage: StorageConfig{InMemory: true},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateRejectsNonWebsocketRelay(t *testing.T) {
	cfg := validConfig()
	cfg.Relays.URLs = []string{"https://relay.example.com"}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws:// or wss://")
}

func TestValidateRejectsEmptyRelayList(t *testing.T) {
	cfg := validConfig()
	cfg.Relays.URLs = nil

	require.Error(t, Validate(cfg))
}

func TestValidateRejectsPublishTimeoutBeyondQueryWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Client.QueryTimeout = time.Second
	cfg.Client.PublishTimeout = 5 * time.Second

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice the query timeout")
}

func TestValidateRejectsConflictingIdentitySources(t *testing.T) {
	cfg := validConfig()
	cfg.Identity.SecretKey = strings.Repeat("a", 64)
	cfg.Identity.KeyFile = "/tmp/key"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidateRejectsDiskStorageWithoutPath(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.InMemory = false
	cfg.Storage.Path = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage path")
}

func TestValidateRejectsTinyQueryTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Client.QueryTimeout = 10 * time.Millisecond

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 100ms and 1 hour")
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"

	require.Error(t, Validate(cfg))
}
