// Package config loads the relay's runtime configuration from a YAML file
// whose path is given as the program's first CLI argument.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the relay needs to run. Fields not set in the
// config file fall back to the defaults applied in Load.
type Config struct {
	Hostname   string `yaml:"hostname"`
	ListenPort int    `yaml:"listen_port"`
	DB         string `yaml:"db"`

	RSAPrivateKeyPath string `yaml:"rsa_private_key_path"`
	RSAPublicKeyPath  string `yaml:"rsa_public_key_path"`

	LogLevel  string `yaml:"log_level"`
	StaticDir string `yaml:"static_dir"`

	// Tunable performance constants. All have sensible defaults mirroring
	// §5's concurrency model; operators can override without a rebuild.
	PollInterval              time.Duration `yaml:"poll_interval"`
	HTTPTimeout               time.Duration `yaml:"http_timeout"`
	SenderQueueCapacity       int           `yaml:"sender_queue_capacity"`
	SenderFanInCapacity       int           `yaml:"sender_fanin_capacity"`
	DescendantsWorkerCapacity int           `yaml:"descendants_worker_capacity"`
	FederationConcurrency     int           `yaml:"federation_concurrency"`
}

// Default tunables, applied whenever the config file leaves a field at its
// zero value.
const (
	defaultPollInterval              = 60 * time.Second
	defaultHTTPTimeout               = 5 * time.Second
	defaultSenderQueueCapacity       = 1024
	defaultSenderFanInCapacity       = 16
	defaultDescendantsWorkerCapacity = 16
	defaultFederationConcurrency     = 10
	defaultListenPort                = 8000
)

// Load reads and parses the YAML config file at path, applying defaults for
// any tunable left unset. Required fields (hostname, db) missing from the
// file are an error: unlike the tunables, there's no sane default for them.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Hostname = strings.ToLower(strings.TrimSpace(cfg.Hostname))
	if cfg.Hostname == "" {
		return nil, fmt.Errorf("config %s: hostname is required", path)
	}
	if cfg.DB == "" {
		return nil, fmt.Errorf("config %s: db is required", path)
	}

	if cfg.ListenPort == 0 {
		cfg.ListenPort = defaultListenPort
	}
	if cfg.RSAPrivateKeyPath == "" {
		cfg.RSAPrivateKeyPath = "private.pem"
	}
	if cfg.RSAPublicKeyPath == "" {
		cfg.RSAPublicKeyPath = "public.pem"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "static"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.SenderQueueCapacity == 0 {
		cfg.SenderQueueCapacity = defaultSenderQueueCapacity
	}
	if cfg.SenderFanInCapacity == 0 {
		cfg.SenderFanInCapacity = defaultSenderFanInCapacity
	}
	if cfg.DescendantsWorkerCapacity == 0 {
		cfg.DescendantsWorkerCapacity = defaultDescendantsWorkerCapacity
	}
	if cfg.FederationConcurrency == 0 {
		cfg.FederationConcurrency = defaultFederationConcurrency
	}

	return &cfg, nil
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.ListenPort)
}
