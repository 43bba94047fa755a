// Package config loads process configuration from the environment, the
// same env-var-with-defaults discipline the rest of this codebase's
// lineage uses, generalized to the variables this service actually reads.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full set of runtime configuration for the allocator
// process: region/store identity, cloud credentials, and refresh-job
// wiring.
type Config struct {
	Region        string        `yaml:"region"`
	EtcdEndpoints []string      `yaml:"etcd_endpoints"`
	EtcdPrefix    string        `yaml:"etcd_prefix"`
	Subnet        string        `yaml:"subnet"`
	Namespace     string        `yaml:"namespace"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	LinodeToken        string `yaml:"-"`
	CloudMaxAttempts   int    `yaml:"cloud_max_attempts"`
	CloudMaxConcurrent int    `yaml:"cloud_max_concurrent"`

	RefreshManifestPath string `yaml:"refresh_manifest_path"`

	ServerPort    string        `yaml:"server_port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Region:        getEnv("REGION", ""),
		EtcdEndpoints: splitAndTrim(getEnv("ETCD_ENDPOINTS", ""), ","),
		EtcdPrefix:    getEnv("ETCD_PREFIX", "/vlan/ip/"),
		Subnet:        getEnv("SUBNET", ""),
		Namespace:     getEnv("NAMESPACE", "kube-system"),
		CacheTTL:      getSecondsEnv("CACHE_TTL_SECONDS", 0),

		LinodeToken:        getEnv("LINODE_TOKEN", ""),
		CloudMaxAttempts:   getIntEnv("LINODE_MAX_ATTEMPTS", 5),
		CloudMaxConcurrent: getIntEnv("LINODE_MAX_CONCURRENT_FETCHES", 8),

		RefreshManifestPath: getEnv("REFRESH_JOB_MANIFEST_PATH", "/etc/vlanipam/refresh-job.yaml"),

		ServerPort:    getEnv("SERVER_PORT", "8080"),
		ReadTimeout:   getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:  getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
		HealthTimeout: getDurationEnv("HEALTH_CHECK_TIMEOUT", 3*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the variables the process cannot start without.
// REGION and ETCD_ENDPOINTS are required unconditionally; SUBNET is not
// checked here (an allocator built without it rejects every Release with
// ERR_MISSING_CONFIG).
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Region) == "" {
		return fmt.Errorf("REGION is required")
	}
	if len(c.EtcdEndpoints) == 0 {
		return fmt.Errorf("ETCD_ENDPOINTS is required")
	}
	return nil
}

// SubnetOrErr returns the configured subnet, or an error if it was never
// set.
func (c *Config) SubnetOrErr() (string, error) {
	if strings.TrimSpace(c.Subnet) == "" {
		return "", fmt.Errorf("SUBNET is required")
	}
	return c.Subnet, nil
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	return ":" + c.ServerPort
}

// DefaultConfigPath returns the default config file path, honoring an
// env override.
func DefaultConfigPath() string {
	if val := strings.TrimSpace(os.Getenv("VLANIPAM_CONFIG_PATH")); val != "" {
		return val
	}
	return "vlanipam.yaml"
}

// LoadFromFileOrEnv loads configuration from a YAML file if one exists at
// path, then applies environment variable overrides on top of it. If the
// file does not exist, it falls back to the existing environment-only
// Load(). Environment overrides only apply when the variable is explicitly
// set, so a file value is never silently clobbered by an unset default.
func LoadFromFileOrEnv(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Load()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Config{
		EtcdPrefix:          "/vlan/ip/",
		Namespace:           "kube-system",
		CloudMaxAttempts:    5,
		CloudMaxConcurrent:  8,
		RefreshManifestPath: "/etc/vlanipam/refresh-job.yaml",
		ServerPort:          "8080",
		ReadTimeout:         15 * time.Second,
		WriteTimeout:        15 * time.Second,
		HealthTimeout:       3 * time.Second,
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveToFile writes cfg to path as YAML, creating parent directories as
// needed.
func SaveToFile(cfg *Config, path string) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnvNonEmpty("REGION"); ok {
		cfg.Region = v
	}
	if v, ok := lookupEnvNonEmpty("ETCD_ENDPOINTS"); ok {
		cfg.EtcdEndpoints = splitAndTrim(v, ",")
	}
	if v, ok := lookupEnvNonEmpty("ETCD_PREFIX"); ok {
		cfg.EtcdPrefix = v
	}
	if v, ok := lookupEnvNonEmpty("SUBNET"); ok {
		cfg.Subnet = v
	}
	if v, ok := lookupEnvNonEmpty("NAMESPACE"); ok {
		cfg.Namespace = v
	}
	if v, ok := lookupEnvNonEmpty("CACHE_TTL_SECONDS"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.CacheTTL = time.Duration(secs) * time.Second
		}
	}
	if v, ok := lookupEnvNonEmpty("LINODE_TOKEN"); ok {
		cfg.LinodeToken = v
	}
	if v, ok := lookupEnvNonEmpty("LINODE_MAX_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CloudMaxAttempts = n
		}
	}
	if v, ok := lookupEnvNonEmpty("LINODE_MAX_CONCURRENT_FETCHES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CloudMaxConcurrent = n
		}
	}
	if v, ok := lookupEnvNonEmpty("REFRESH_JOB_MANIFEST_PATH"); ok {
		cfg.RefreshManifestPath = v
	}
	if v, ok := lookupEnvNonEmpty("SERVER_PORT"); ok {
		cfg.ServerPort = v
	}
	if v, ok := lookupEnvNonEmpty("SERVER_READ_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReadTimeout = d
		}
	}
	if v, ok := lookupEnvNonEmpty("SERVER_WRITE_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WriteTimeout = d
		}
	}
	if v, ok := lookupEnvNonEmpty("HEALTH_CHECK_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HealthTimeout = d
		}
	}
}

func lookupEnvNonEmpty(key string) (string, bool) {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultSeconds int) time.Duration {
	seconds := getIntEnv(key, defaultSeconds)
	return time.Duration(seconds) * time.Second
}

func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
