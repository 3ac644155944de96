package lmcs

import (
	"time"

	"github.com/leandroasilva/lmcs-db/internal/errs"
	"github.com/leandroasilva/lmcs-db/internal/lmcsconfig"
)

// Config configures a Database. StorageType and DatabaseName are
// required for any persistent backend.
type Config struct {
	// StorageType selects the backend: "memory", "json", "binary", "aol".
	StorageType string `yaml:"storageType"`

	// DatabaseName is the file basename for persistent backends.
	DatabaseName string `yaml:"databaseName"`

	// CustomPath is the directory root. Defaults to "./lmcs-data".
	CustomPath string `yaml:"customPath"`

	// EncryptionKey, when non-empty, enables CryptoVault for this database.
	EncryptionKey string `yaml:"encryptionKey"`

	// EnableChecksums enables SHA-256 per-entry checksums. Default true.
	EnableChecksums *bool `yaml:"enableChecksums"`

	// BufferSize is the AOL write-buffer threshold before implicit flush.
	// Default 100.
	BufferSize int `yaml:"bufferSize"`

	// CompactionIntervalMs is the milliseconds between automatic AOL
	// compactions; 0 disables. Default 60000 when unset.
	CompactionIntervalMs *int `yaml:"compactionInterval"`

	// AutosaveIntervalMs is the milliseconds between JSON autosaves;
	// 0 disables. Default 5000 when unset.
	AutosaveIntervalMs *int `yaml:"autosaveInterval"`

	// EnableTransactions is implicitly true for non-memory storages.
	// Explicitly false forbids Transaction().
	EnableTransactions *bool `yaml:"enableTransactions"`

	// TransactionQueueTimeout bounds how long a caller waits for its turn
	// at the per-database transaction FIFO gate before giving up. Zero
	// means wait indefinitely.
	TransactionQueueTimeout time.Duration `yaml:"transactionQueueTimeout"`

	// LogLevel selects the structured logger's verbosity: "debug",
	// "info", "warn", or "error". Default "info".
	LogLevel string `yaml:"logLevel"`
}

// LoadConfig reads a YAML configuration file into a Config.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := lmcsconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (c *Config) validate() error {
	switch c.StorageType {
	case "memory", "json", "binary", "aol":
	default:
		return errs.NewValidation("config.unknown_storage_type", "unknown storage type: "+c.StorageType)
	}
	if c.StorageType != "memory" && c.DatabaseName == "" {
		return errs.NewValidation("config.missing_database_name", "databaseName is required for persistent backends")
	}
	return nil
}

func (c *Config) path() string {
	root := c.CustomPath
	if root == "" {
		root = "./lmcs-data"
	}
	return root
}

func (c *Config) bufferSize() int {
	if c.BufferSize > 0 {
		return c.BufferSize
	}
	return 100
}

func (c *Config) compactionInterval() time.Duration {
	if c.CompactionIntervalMs == nil {
		return 60 * time.Second
	}
	return time.Duration(*c.CompactionIntervalMs) * time.Millisecond
}

func (c *Config) autosaveInterval() time.Duration {
	if c.AutosaveIntervalMs == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.AutosaveIntervalMs) * time.Millisecond
}

func (c *Config) transactionsEnabled() bool {
	return boolOr(c.EnableTransactions, c.StorageType != "memory")
}

func (c *Config) checksumsEnabled() bool {
	return boolOr(c.EnableChecksums, true)
}
