// Package config defines clockd's enumerated runtime configuration and its
// YAML-file + CLI-flag loading, replacing the original's ad-hoc key/value
// lookups per spec.md §9.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clockwork-org/clockd/pkg/log"
)

// Config is the full set of knobs the server loop, session cache, content
// server and cert/trust subsystems need at startup.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	AdminAddr  string `yaml:"admin_addr"`

	SessionCacheCapacity int           `yaml:"session_cache_capacity"`
	SessionCacheMinLife  time.Duration `yaml:"session_cache_min_life"`

	ManifestPath string `yaml:"manifest_path"`
	CopydownDir  string `yaml:"copydown_dir"`

	TrustDBPath  string `yaml:"trust_db_path"`
	CertPath     string `yaml:"cert_path"`
	StrictVerify bool   `yaml:"strict_verify"`

	PIDFile  string `yaml:"pid_file"`
	LockFile string `yaml:"lock_file"`

	LogLevel log.Level `yaml:"log_level"`
	LogJSON  bool       `yaml:"log_json"`
}

// Default returns a Config with the same fallbacks the original clockd.conf
// shipped with.
func Default() Config {
	return Config{
		ListenAddr:           "0.0.0.0:2314",
		AdminAddr:            "127.0.0.1:2315",
		SessionCacheCapacity: 1024,
		SessionCacheMinLife:  5 * time.Minute,
		ManifestPath:         "/etc/clockd/manifest.pol",
		CopydownDir:          "/etc/clockd/copydown",
		TrustDBPath:          "/etc/clockd/trusted_certs",
		CertPath:             "/etc/clockd/certs/clockd",
		StrictVerify:         true,
		PIDFile:              "/var/run/clockd.pid",
		LockFile:             "/var/run/clockd.lock",
		LogLevel:             log.InfoLevel,
	}
}

// Load reads a YAML config file on top of Default(), so unset fields retain
// their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// EnvOverrideLogLevel applies the CLOCKD_LOG_LEVEL diagnostic override
// described in spec.md §6's Environment section, if set.
func EnvOverrideLogLevel(cfg *Config) {
	if v := os.Getenv("CLOCKD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = log.Level(v)
	}
}
