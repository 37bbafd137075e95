package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "ARKVAULT_CONFIG"
	EnvServer  = "ARKVAULT_SERVER"
	EnvDataDir = "ARKVAULT_DATA_DIR"

	// EnvPassword supplies the account password non-interactively.
	// It is read by the CLI prompt, never stored in Config.
	EnvPassword = "ARKVAULT_PASSWORD"

	// EnvFilePassword supplies the per-file password for custom mode.
	EnvFilePassword = "ARKVAULT_FILE_PASSWORD"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // ARKVAULT_CONFIG: override config file path
	ServerURL  string // ARKVAULT_SERVER: vault server base URL
	DataDir    string // ARKVAULT_DATA_DIR: token and catalog directory
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServer),
		DataDir:    os.Getenv(EnvDataDir),
	}
}
