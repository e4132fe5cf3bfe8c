package store

// Config holds chat-state persistence settings shared across bots.
// Driver selects the backend: "file" (the default) keeps a JSON snapshot
// on disk, "postgres" uses a database with migrations applied on open.
type Config struct {
	Driver string `yaml:"driver" envconfig:"STORE_DRIVER"`
	Path   string `yaml:"path" envconfig:"STORE_PATH"`

	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}
