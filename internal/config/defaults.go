package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work without any config file.
const (
	defaultSessionTTL      = "1h"
	defaultSweepInterval   = "1m"
	defaultParallelUploads = 4
	defaultMaxFileSize     = "5GiB"
	defaultConnectTimeout  = "10s"
	defaultDataTimeout     = "60s"
	defaultLogLevel        = "warn"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values. It is the
// starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			TTL:           defaultSessionTTL,
			SweepInterval: defaultSweepInterval,
		},
		Transfers: TransfersConfig{
			ParallelUploads: defaultParallelUploads,
			MaxFileSize:     defaultMaxFileSize,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
