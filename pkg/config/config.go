// Package config loads the agrichain YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"agrichain/pkg/ledger"
	"agrichain/pkg/logging"
	"agrichain/pkg/storage"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Chain      ChainConfig      `yaml:"chain"`
	Governance GovernanceConfig `yaml:"governance"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	TLSDomain    string `yaml:"tls_domain"` // serve HTTPS on 80/443 when set
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	IdleTimeout  string `yaml:"idle_timeout"`
}

// StorageConfig selects the world-state backend.
type StorageConfig struct {
	Type string `yaml:"type"` // memory, sqlite, sqlite3, leveldb
	Path string `yaml:"path"`
}

// ChainConfig controls how block heights are derived from wall time.
type ChainConfig struct {
	BlockInterval string `yaml:"block_interval"`
}

// GovernanceConfig names the contract owner and the principals seeded into the rosters.
type GovernanceConfig struct {
	ContractOwner string   `yaml:"contract_owner"`
	Certifiers    []string `yaml:"certifiers,omitempty"`
	Testers       []string `yaml:"testers,omitempty"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // json, console
}

// DefaultConfig returns a configuration that runs out of the box with a local sqlite file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8765,
			ReadTimeout:  "5s",
			WriteTimeout: "10s",
			IdleTimeout:  "60s",
		},
		Storage: StorageConfig{
			Type: storage.TypeSQLite,
			Path: "agrichain.db",
		},
		Chain: ChainConfig{
			BlockInterval: ledger.DefaultBlockInterval.String(),
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: logging.EncodingJSON,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	// PORT is what most process managers set; the prefixed variable wins when both exist.
	for _, key := range []string{"PORT", "AGRICHAIN_PORT"} {
		if v := os.Getenv(key); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				c.Server.Port = port
			}
		}
	}
	if v := os.Getenv("AGRICHAIN_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("AGRICHAIN_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("AGRICHAIN_CONTRACT_OWNER"); v != "" {
		c.Governance.ContractOwner = v
	}
	if v := os.Getenv("AGRICHAIN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for name, v := range map[string]string{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"server.idle_timeout":  c.Server.IdleTimeout,
		"chain.block_interval": c.Chain.BlockInterval,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", name, v)
		}
	}

	known := false
	for _, t := range storage.Types() {
		if t == c.Storage.Type {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("storage.type %q must be one of %s", c.Storage.Type, strings.Join(storage.Types(), ", "))
	}
	if c.Storage.Type == storage.TypeLevelDB && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for leveldb")
	}

	if _, err := c.Owner(); err != nil {
		return err
	}
	for _, group := range [][]string{c.Governance.Certifiers, c.Governance.Testers} {
		for _, p := range group {
			if _, err := ledger.ParsePrincipal(p); err != nil {
				return fmt.Errorf("governance: %w", err)
			}
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Encoding {
	case "", logging.EncodingJSON, logging.EncodingConsole:
	default:
		return fmt.Errorf("logging.encoding %q must be json or console", c.Logging.Encoding)
	}
	return nil
}

// Owner parses the contract owner; an empty owner leaves every owner-only function locked.
func (c *Config) Owner() (ledger.Principal, error) {
	if strings.TrimSpace(c.Governance.ContractOwner) == "" {
		return "", nil
	}
	p, err := ledger.ParsePrincipal(c.Governance.ContractOwner)
	if err != nil {
		return "", fmt.Errorf("governance.contract_owner: %w", err)
	}
	return p, nil
}

// Principals parses a validated roster list.
func Principals(list []string) []ledger.Principal {
	out := make([]ledger.Principal, 0, len(list))
	for _, s := range list {
		if p, err := ledger.ParsePrincipal(s); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) GetReadTimeout() time.Duration {
	return durationOr(c.Server.ReadTimeout, 5*time.Second)
}

func (c *Config) GetWriteTimeout() time.Duration {
	return durationOr(c.Server.WriteTimeout, 10*time.Second)
}

func (c *Config) GetIdleTimeout() time.Duration {
	return durationOr(c.Server.IdleTimeout, 60*time.Second)
}

// GetBlockInterval returns the chain block interval as a duration.
func (c *Config) GetBlockInterval() time.Duration {
	return durationOr(c.Chain.BlockInterval, ledger.DefaultBlockInterval)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
