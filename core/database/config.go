package database

// Config holds sqlite database settings shared across bots.
type Config struct {
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	BusyTimeoutMS  int    `yaml:"busy_timeout_ms" envconfig:"DB_BUSY_TIMEOUT_MS"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}
