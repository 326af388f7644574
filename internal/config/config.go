package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const namespace = "EXAMMER"

// Config carries every process-level setting. Values come from EXAMMER_*
// environment variables, with a .env file loaded first when present.
type Config struct {
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DBPath is the SQLite database file, relative to the working
	// directory unless absolute.
	DBPath string `envconfig:"DB_PATH" default:"exammer.db"`
	// MigrationsURL is a golang-migrate source URL.
	MigrationsURL string `envconfig:"MIGRATIONS_URL" default:"file://migrations"`
	// SkipMigrations leaves schema management to an external owner.
	SkipMigrations bool `envconfig:"SKIP_MIGRATIONS" default:"false"`

	// AccessFile is the admin-editable user access file.
	AccessFile string `envconfig:"ACCESS_FILE" default:"user-access.json"`
	// SyncDebounce is how long the watcher waits after the last file
	// change before syncing.
	SyncDebounce time.Duration `envconfig:"SYNC_DEBOUNCE" default:"500ms"`
	// ReconcileSchedule is a cron spec for the periodic file refresh;
	// empty disables it.
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"@every 10m"`

	// OllamaModel is the model used for topic and question generation.
	// The Ollama endpoint itself comes from OLLAMA_HOST.
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"llama3.1"`
}

// Load reads a .env file if one exists, then the environment. A missing
// .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(namespace, &cfg); err != nil {
		return nil, errors.Wrap(err, "loading environment")
	}
	return &cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return c.HTTPHost + ":" + c.HTTPPort
}
