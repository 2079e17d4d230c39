package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"deliverynet/storage"
)

const (
	defaultListenAddress  = ":8080"
	defaultDataDir        = "./delivery-data"
	defaultEnvironment    = "dev"
	defaultTokenPrecision = 18
	defaultKafkaTopic     = "deliverynet.payouts"
)

type Config struct {
	ListenAddress  string    `toml:"ListenAddress" yaml:"listenAddress"`
	DataDir        string    `toml:"DataDir" yaml:"dataDir"`
	StorageBackend string    `toml:"StorageBackend" yaml:"storageBackend"`
	TokenPrecision uint8     `toml:"TokenPrecision" yaml:"tokenPrecision"`
	Environment    string    `toml:"Environment" yaml:"environment"`
	LogLevel       string    `toml:"LogLevel" yaml:"logLevel"`
	LogFile        string    `toml:"LogFile" yaml:"logFile"`
	Auth           Auth      `toml:"Auth" yaml:"auth"`
	RateLimit      RateLimit `toml:"RateLimit" yaml:"rateLimit"`
	Telemetry      Telemetry `toml:"Telemetry" yaml:"telemetry"`
	Kafka          Kafka     `toml:"Kafka" yaml:"kafka"`
	Indexer        Indexer   `toml:"Indexer" yaml:"indexer"`
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		ListenAddress:  defaultListenAddress,
		DataDir:        defaultDataDir,
		StorageBackend: storage.BackendLevelDB,
		TokenPrecision: defaultTokenPrecision,
		Environment:    defaultEnvironment,
		LogLevel:       "info",
		RateLimit:      RateLimit{RequestsPerMinute: 600, Burst: 60},
		Kafka:          Kafka{Topic: defaultKafkaTopic},
	}
}

// Load loads the configuration from the given path. Files ending in .yaml or
// .yml are decoded as YAML, anything else as TOML. A missing file is created
// with the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown field %s in %s", undecoded[0], path)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.StorageBackend) == "" {
		c.StorageBackend = storage.BackendLevelDB
	}
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = defaultEnvironment
	}
	if strings.TrimSpace(c.Kafka.Topic) == "" {
		c.Kafka.Topic = defaultKafkaTopic
	}
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
