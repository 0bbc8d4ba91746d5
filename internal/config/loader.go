package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"homelink/internal/schema"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CoreKey is the top-level block holding the host's own settings.
const CoreKey = "homelink"

// MQTTConfig configures the optional MQTT bridge.
type MQTTConfig struct {
	Broker   string `yaml:"broker" validate:"omitempty,url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// CoreConfig represents the homelink block of configuration.yaml
type CoreConfig struct {
	DataDir  string     `yaml:"data_dir"`
	Workers  int        `yaml:"workers" validate:"gte=0"`
	LogLevel string     `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	API      APIConfig  `yaml:"api"`
	MQTT     MQTTConfig `yaml:"mqtt"`
}

// Defaults applied to missing core settings.
const (
	DefaultDataDir    = "data"
	DefaultAPIPort    = 8080
	DefaultMQTTPrefix = "homelink"
)

// Loader reads configuration.yaml. The homelink block configures the host;
// every other top-level block belongs to the integration of that domain.
type Loader struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	core     CoreConfig
	sections map[string]yaml.Node
}

// NewLoader creates a new configuration loader
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{
		path:     path,
		logger:   logger,
		sections: make(map[string]yaml.Node),
	}
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads and validates the configuration file. A missing file is not an
// error: the host runs with defaults and no YAML-configured integrations.
func (l *Loader) Load() error {
	l.logger.Info("Loading configuration", zap.String("path", l.path))

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		l.logger.Warn("Configuration file not found, using defaults", zap.String("path", l.path))
		data = nil
	} else if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	return l.parse(data)
}

// LoadBytes parses configuration from memory.
func (l *Loader) LoadBytes(data []byte) error {
	return l.parse(data)
}

// Reload re-reads the file, keeping the previous configuration on error.
func (l *Loader) Reload() error {
	if err := l.Load(); err != nil {
		l.logger.Error("Failed to reload configuration", zap.Error(err))
		return err
	}
	return nil
}

func (l *Loader) parse(data []byte) error {
	var root map[string]yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	core := CoreConfig{}
	if node, ok := root[CoreKey]; ok {
		if err := node.Decode(&core); err != nil {
			return fmt.Errorf("failed to parse %s block: %w", CoreKey, err)
		}
		delete(root, CoreKey)
	}
	applyDefaults(&core)
	if err := schema.Check(&core); err != nil {
		return fmt.Errorf("invalid %s block: %w", CoreKey, err)
	}

	if root == nil {
		root = make(map[string]yaml.Node)
	}

	l.mu.Lock()
	l.core = core
	l.sections = root
	l.mu.Unlock()

	domains := make([]string, 0, len(root))
	for domain := range root {
		domains = append(domains, domain)
	}
	l.logger.Info("Configuration loaded",
		zap.String("data_dir", core.DataDir),
		zap.Strings("sections", domains))
	return nil
}

func applyDefaults(c *CoreConfig) {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.API.Port == 0 {
		c.API.Port = DefaultAPIPort
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = DefaultMQTTPrefix
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Core returns the loaded host settings.
func (l *Loader) Core() CoreConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.core
}

// DBPath returns the bbolt database location under the data directory.
func (l *Loader) DBPath() string {
	return filepath.Join(l.Core().DataDir, "homelink.db")
}

// Section decodes the block keyed by domain into out. Unknown keys are
// ignored so one block can serve several readers.
func (l *Loader) Section(domain string, out any) (bool, error) {
	l.mu.RLock()
	node, ok := l.sections[domain]
	l.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if err := node.Decode(out); err != nil {
		return true, fmt.Errorf("failed to parse %s block: %w", domain, err)
	}
	return true, nil
}

// Domains returns the integration blocks present in the file.
func (l *Loader) Domains() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]string, 0, len(l.sections))
	for domain := range l.sections {
		result = append(result, domain)
	}
	return result
}
