package config

import "time"

// Config represents the complete watchmand configuration. Every field has a
// working default; a daemon started with no config file at all is valid.
type Config struct {
	// Sockname overrides the resolved unix socket path.
	Sockname string `yaml:"sockname" env:"WATCHMAND_SOCK"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" env:"WATCHMAND_LOG_LEVEL"`

	// LogFile overrides the per-instance log file path. The daemon never
	// logs to its stdio streams.
	LogFile string `yaml:"log_file" env:"WATCHMAND_LOG_FILE"`

	// IdleConnTimeout closes client connections with no traffic.
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`

	// DisabledCommands removes builtins from the registry at startup.
	DisabledCommands []string `yaml:"disabled_commands"`

	Journal JournalConfig `yaml:"journal"`
	Status  StatusConfig  `yaml:"status"`

	// Path is the absolute path of the loaded config file, empty when
	// running on pure defaults. debug-status re-hashes it to detect drift.
	Path string `yaml:"-"`

	// Hash is the BLAKE3 content hash of the loaded config file, empty
	// when running on pure defaults. Reported by debug-status.
	Hash string `yaml:"-"`
}

// JournalConfig controls the command audit journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" env:"WATCHMAND_JOURNAL_ENABLED"`
	Path    string `yaml:"path"`
}

// StatusConfig controls the optional HTTP status listener.
type StatusConfig struct {
	Enabled bool `yaml:"enabled" env:"WATCHMAND_STATUS_ENABLED"`

	// Socket is the unix socket the status HTTP server listens on.
	// Defaults to <instance root>/status.sock.
	Socket string `yaml:"socket"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		LogLevel:        "INFO",
		IdleConnTimeout: 10 * time.Minute,
		Journal:         JournalConfig{Enabled: true},
	}
}
