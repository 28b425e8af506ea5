package config

import "time"

// ClientConfig holds behavior settings for the relay pool and the derived
// state layer.
type ClientConfig struct {
	// QueryTimeout bounds one-shot queries: the pool resolves with whatever
	// it has collected when this elapses, even if not every relay reached
	// end-of-stored-events.
	QueryTimeout time.Duration `mapstructure:"QUERY_TIMEOUT"   json:"query_timeout"   validate:"required,timeout_duration"`

	// PublishTimeout bounds the wait for the first relay acknowledgment.
	PublishTimeout time.Duration `mapstructure:"PUBLISH_TIMEOUT" json:"publish_timeout" validate:"required,timeout_duration"`

	// DialTimeout bounds a single websocket dial.
	DialTimeout time.Duration `mapstructure:"DIAL_TIMEOUT"    json:"dial_timeout"    validate:"required,timeout_duration"`

	// PingInterval keeps idle relay connections alive.
	PingInterval time.Duration `mapstructure:"PING_INTERVAL"   json:"ping_interval"   validate:"required,reasonable_duration"`

	// SubscriptionBuffer is the per-subscription event channel depth.
	SubscriptionBuffer int `mapstructure:"SUBSCRIPTION_BUFFER" json:"subscription_buffer" validate:"required,min=16,max=65536"`

	// SeenCacheSize caps the exact recent-id set backing streaming dedup.
	SeenCacheSize int `mapstructure:"SEEN_CACHE_SIZE" json:"seen_cache_size" validate:"required,min=1000,max=10000000"`

	// ProfileTTL is the staleness bound of the profile cache. Zero disables
	// expiry entirely.
	ProfileTTL time.Duration `mapstructure:"PROFILE_TTL"     json:"profile_ttl"     validate:"min=0"`

	// SearchWindow is the most-recent-N window fetched for client-side
	// content and profile search.
	SearchWindow int `mapstructure:"SEARCH_WINDOW"   json:"search_window"   validate:"required,min=10,max=5000"`

	// MaxDialsPerMinute throttles reconnect attempts per relay.
	MaxDialsPerMinute int `mapstructure:"MAX_DIALS_PER_MINUTE" json:"max_dials_per_minute" validate:"required,min=1,max=600"`
}

// RelaysConfig holds the initial relay set. The set is mutable at runtime
// through the pool; this is only the starting point.
type RelaysConfig struct {
	URLs []string `mapstructure:"URLS" json:"urls" validate:"required,min=1,dive,relayurl"`
}

// IdentityConfig points at local key material. Both may be empty when an
// external signer supplies the identity.
type IdentityConfig struct {
	// SecretKey is a hex or nsec-encoded secret key. Prefer KeyFile so the
	// key stays out of environment listings.
	SecretKey string `mapstructure:"SECRET_KEY" json:"-"        validate:"omitempty"`
	KeyFile   string `mapstructure:"KEY_FILE"   json:"key_file" validate:"omitempty"`
}

// StorageConfig configures the local badger slot store.
type StorageConfig struct {
	Path     string `mapstructure:"PATH"      json:"path"      validate:"required_without=InMemory"`
	InMemory bool   `mapstructure:"IN_MEMORY" json:"in_memory"`
}

// MetricsConfig holds the optional prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"ENABLED" json:"enabled"`
	Port    int  `mapstructure:"PORT"    json:"port" validate:"omitempty,min=1024,max=65535"`
}
