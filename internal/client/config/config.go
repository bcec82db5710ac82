package config

import "time"

// Config holds runtime settings for the motium-sync client.
//
// Units: all intervals are time.Duration values.
type Config struct {
	ServerEndpointAddr  string
	DBPath              string
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration

	BatchSize      int
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	MaxRetries     int

	LogFile  string
	LogLevel string

	DeadLetter DeadLetterConfig
}

// DeadLetterConfig addresses the S3 bucket failed operations are exported to.
// An empty Bucket disables the export.
type DeadLetterConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DBPath = "state/motium.db"
	c.SyncInterval = 30 * time.Minute
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.BatchSize = 50
	c.BackoffBase = 2 * time.Second
	c.BackoffCeiling = 5 * time.Minute
	c.MaxRetries = 5
	c.LogLevel = "info"
	c.DeadLetter.Prefix = "motium/dead-letter"
	c.DeadLetter.Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
