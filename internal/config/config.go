// Package config loads the node's runtime configuration from a YAML
// file, a ".env" file, and environment-variable overrides, in that
// order, mirroring the teacher's env-substitution pass over a YAML base.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUploadLimit is the HARD_UPLOAD_LIMIT from spec.md §4.5: the
	// router rejects any request body larger than this with 406.
	DefaultUploadLimit = 2 * 1024 * 1024 // 2 MiB

	// DefaultThreadPoolSize bounds the router's worker pool; 0 means
	// unbounded.
	DefaultThreadPoolSize = 16
)

// Config is the node's complete runtime configuration.
type Config struct {
	Listen        ListenConfig  `yaml:"listen"`
	Router        RouterConfig  `yaml:"router"`
	Node          NodeConfig    `yaml:"node"`
	Logging       LoggingConfig `yaml:"logging"`
	Metrics       MetricsConfig `yaml:"metrics"`
	AdminRotation AdminConfig   `yaml:"admin_rotation"`
}

// ListenConfig is the endpoint's HTTP listen address.
type ListenConfig struct {
	Address string `yaml:"address"`
}

// RouterConfig bounds the request router's resources (spec §5
// Concurrency Model).
type RouterConfig struct {
	ThreadPoolSize int   `yaml:"thread_pool_size"`
	UploadLimit    int64 `yaml:"upload_limit"`
}

// NodeConfig locates the node's own signing key and the roster of
// peers used to assemble the /network directory.
type NodeConfig struct {
	PrivateKeyFile string `yaml:"private_key_file"`
	RosterFile     string `yaml:"roster_file"`
}

// LoggingConfig matches internal/logger's level/format inputs.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus /metrics HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// AdminConfig guards the administrative key-rotation hook (spec §4.7).
type AdminConfig struct {
	BearerSecret string        `yaml:"bearer_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

func defaults() Config {
	return Config{
		Listen: ListenConfig{Address: ":8443"},
		Router: RouterConfig{
			ThreadPoolSize: DefaultThreadPoolSize,
			UploadLimit:    DefaultUploadLimit,
		},
		Node: NodeConfig{
			PrivateKeyFile: "node.key",
			RosterFile:     "roster.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		AdminRotation: AdminConfig{
			TokenTTL: 5 * time.Minute,
		},
	}
}

// Load reads a YAML config file, loads dotenvPath if present (ignored
// silently if missing, since it's a dev convenience, not a required
// input), and applies LEDGERNODE_* environment overrides on top.
func Load(yamlPath, dotenvPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", dotenvPath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEDGERNODE_LISTEN_ADDRESS"); v != "" {
		cfg.Listen.Address = v
	}
	if v := os.Getenv("LEDGERNODE_THREAD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Router.ThreadPoolSize = n
		}
	}
	if v := os.Getenv("LEDGERNODE_UPLOAD_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Router.UploadLimit = n
		}
	}
	if v := os.Getenv("LEDGERNODE_NODE_PRIVATE_KEY_FILE"); v != "" {
		cfg.Node.PrivateKeyFile = v
	}
	if v := os.Getenv("LEDGERNODE_ROSTER_FILE"); v != "" {
		cfg.Node.RosterFile = v
	}
	if v := os.Getenv("LEDGERNODE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEDGERNODE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LEDGERNODE_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("LEDGERNODE_ADMIN_BEARER_SECRET"); v != "" {
		cfg.AdminRotation.BearerSecret = v
	}
}

// Validate checks the invariants the rest of the node relies on
// without further checking: a non-negative thread pool size (0 means
// unbounded, per spec §5) and a positive upload limit.
func (c *Config) Validate() error {
	if c.Router.ThreadPoolSize < 0 {
		return fmt.Errorf("config: router.thread_pool_size must be >= 0, got %d", c.Router.ThreadPoolSize)
	}
	if c.Router.UploadLimit <= 0 {
		return fmt.Errorf("config: router.upload_limit must be > 0, got %d", c.Router.UploadLimit)
	}
	if c.Node.PrivateKeyFile == "" {
		return fmt.Errorf("config: node.private_key_file must be set")
	}
	return nil
}
