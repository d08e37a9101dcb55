package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/familytree/pkg/logging"
)

const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

const (
	MatchFallback = "fallback"
	MatchExact    = "exact"
)

var defaultEnvFiles = []string{".env", ".env.local"}

var singleton = sync.OnceValues(func() (*Configuration, error) {
	return Load(defaultEnvFiles)
})

// LoadEnv loads the env files that exist and reports how many were found.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"familytree"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type MongoOptions struct {
	URI          string        `env:"MONGO_URI"`
	LegacyURI    string        `env:"MONGODB_URI"`
	Database     string        `env:"MONGO_DB" envDefault:"ancheryfamily"`
	Collection   string        `env:"MONGO_COLLECTION" envDefault:"familymembers"`
	Transactions bool          `env:"MONGO_TRANSACTIONS" envDefault:"false"`
	Timeout      time.Duration `env:"MONGO_TIMEOUT" envDefault:"10s"`
}

type ImportOptions struct {
	SourceFile string `env:"SOURCE_FILE"`
	// Empty means the first sheet of the workbook.
	SheetName string `env:"SHEET_NAME"`
	MatchMode string `env:"MATCH_MODE" envDefault:"fallback"`
}

type Configuration struct {
	Database DatabaseOptions
	Mongo    MongoOptions
	Import   ImportOptions

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"mongo"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath        string `env:"LOG_PATH"`

	// Number of env files found by the last load.
	EnvFilesLoaded int `env:"-"`

	logFile io.Closer
	logger  *logrus.Logger
}

// TryUse returns the process-wide configuration loaded from .env and
// .env.local. The first call loads it; later calls return the same result.
func TryUse() (*Configuration, error) {
	return singleton()
}

// Load builds a configuration independent of the singleton.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	c.EnvFilesLoaded = n
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateMatchMode(); err != nil {
		return err
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = c.Mongo.LegacyURI
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) validateBackend() error {
	backend, err := NormalizeBackend(c.StorageBackend)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_BACKEND=%q: %w", c.StorageBackend, err)
	}
	c.StorageBackend = backend
	return nil
}

func (c *Configuration) validateMatchMode() error {
	mode, err := NormalizeMatchMode(c.Import.MatchMode)
	if err != nil {
		return fmt.Errorf("invalid MATCH_MODE=%q: %w", c.Import.MatchMode, err)
	}
	c.Import.MatchMode = mode
	return nil
}

// NormalizeBackend lower-cases v and checks it names a known storage backend.
func NormalizeBackend(v string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(v))
	if backend == "" {
		backend = BackendMongo
	}
	switch backend {
	case BackendMongo, BackendPostgres:
		return backend, nil
	default:
		return "", fmt.Errorf("expected %s|%s", BackendMongo, BackendPostgres)
	}
}

// NormalizeMatchMode lower-cases v and checks it names a known match mode.
func NormalizeMatchMode(v string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(v))
	if mode == "" {
		mode = MatchFallback
	}
	switch mode {
	case MatchFallback, MatchExact:
		return mode, nil
	default:
		return "", fmt.Errorf("expected %s|%s", MatchFallback, MatchExact)
	}
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
		c.logFile = nil
	}
}
