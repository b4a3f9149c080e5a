package config

import "time"

// Config holds all configuration for the pool.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Pool        PoolConfig        `yaml:"pool"`
	Engineering EngineeringConfig `yaml:"engineering"`
}

// PoolConfig holds everything arkime_http_create_server and its companion
// setters (set_headers, set_retries, set_client_cert, ...) previously took
// as constructor arguments and mutators, collected here so they can come
// from a config file or environment instead of being hard-coded at the
// call site (§6, and §1's ambient configuration expansion).
type PoolConfig struct {
	// Hostnames is the CSV-equivalent list of backend base URLs the
	// EndpointRing rotates across. At least one is required (§4.1, §7).
	Hostnames []string `yaml:"hostnames"`

	Insecure    bool   `yaml:"insecure"`
	CATrustFile string `yaml:"ca_trust_file"`

	ClientCertFile string `yaml:"client_cert_file"`
	ClientKeyFile  string `yaml:"client_key_file"`
	ClientKeyPass  string `yaml:"client_key_pass"`

	MaxConns               int `yaml:"max_conns"`
	MaxOutstandingRequests int `yaml:"max_outstanding_requests"`
	MaxRetries             int `yaml:"max_retries"`

	Compress bool `yaml:"compress"`

	CoolDown time.Duration `yaml:"cool_down"`

	LogESRequests      bool `yaml:"log_es_requests"`
	LogHTTPConnections bool `yaml:"log_http_connections"`

	// DefaultHeaders are "Name: Value" pairs appended to every request
	// after its own headers, mirroring server->defaultHeaders (§4.3).
	DefaultHeaders []string `yaml:"default_headers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	// File, when non-empty, is the directory in which a rotating
	// lumberjack sink writes httppool.log, in addition to the stdout
	// handler (§1 ambient stack).
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// EngineeringConfig holds development/debugging configuration.
type EngineeringConfig struct {
	ShowNerdStats bool `yaml:"show_nerdstats"`
	Debug         int  `yaml:"debug"`
}
