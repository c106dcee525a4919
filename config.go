package identity

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brepkit/identity/resolve"
)

// Config is the engine configuration loadable from a YAML file. Fields
// absent from the file keep their defaults.
type Config struct {
	// Policy tunes the resolution pipeline.
	Policy resolve.Policy `yaml:"policy"`

	// Snapshots configures the optional Redis snapshot store. Left zero,
	// no store is created and persistence operations return ErrNoStore
	// unless WithStore provides one.
	Snapshots SnapshotConfig `yaml:"snapshots"`
}

// SnapshotConfig configures the Redis snapshot store.
type SnapshotConfig struct {
	// RedisURL is the Redis connection string. Empty disables the store.
	RedisURL string `yaml:"redis_url"`

	// KeyPrefix namespaces the snapshot keys. Empty uses the store default.
	KeyPrefix string `yaml:"key_prefix"`

	// TTLSeconds expires snapshots after the given number of seconds.
	// Zero keeps them until deleted.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the configured snapshot TTL as a duration.
func (c SnapshotConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{Policy: resolve.DefaultPolicy()}
}

// LoadConfig reads an engine configuration from a YAML file, merges it
// over the defaults, and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("identity: read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("identity: parse config file: %w", err)
	}

	if err := cfg.Policy.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithConfigFile loads the engine configuration from a YAML file when
// the engine is created: the resolution policy, and a Redis snapshot
// store when the file configures one. WithPolicy, WithPolicyFile, and
// WithStore take precedence over the file's settings.
func WithConfigFile(path string) Option {
	return func(c *engineConfig) {
		c.configPath = path
	}
}
