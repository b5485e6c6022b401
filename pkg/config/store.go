package config

import "time"

// StoreBackend selects the blob store implementation behind the diary store.
type StoreBackend string

// Store backend constants.
const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendSQLite StoreBackend = "sqlite"
	StoreBackendGCS    StoreBackend = "gcs"
)

// IsValid checks if the store backend is a known value.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreBackendMemory, StoreBackendSQLite, StoreBackendGCS:
		return true
	}
	return false
}

// String returns the string representation.
func (b StoreBackend) String() string {
	return string(b)
}

// StoreConfig contains diary store settings.
type StoreConfig struct {
	// Backend selects the blob store: memory, sqlite, or gcs.
	Backend StoreBackend `yaml:"backend"`

	// SQLitePath is the database file path when Backend is sqlite.
	SQLitePath string `yaml:"sqlite_path"`

	// GCSBucket is the bucket name when Backend is gcs.
	GCSBucket string `yaml:"gcs_bucket"`

	// OpTimeout bounds each individual store operation.
	OpTimeout time.Duration `yaml:"op_timeout"`
}

// DefaultStoreConfig returns the built-in store defaults.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:    StoreBackendMemory,
		SQLitePath: "carelane.db",
		OpTimeout:  30 * time.Second,
	}
}
