package domain

import (
	"path/filepath"
	"time"
)

// SearchBackend selects the search index implementation.
type SearchBackend string

// Available search backends.
const (
	// SearchBackendSQLite uses an SQLite FTS5 index file next to the row store.
	SearchBackendSQLite SearchBackend = "sqlite"

	// SearchBackendWeaviate uses a remote Weaviate instance.
	SearchBackendWeaviate SearchBackend = "weaviate"
)

// IsValid returns true if the backend is recognised.
func (b SearchBackend) IsValid() bool {
	return b == SearchBackendSQLite || b == SearchBackendWeaviate
}

// String returns the string representation.
func (b SearchBackend) String() string {
	return string(b)
}

// Settings is the complete runtime configuration.
type Settings struct {
	Search SearchSettings
	Store  StoreSettings
	Sync   SyncSettings
	Server ServerSettings
	Log    LogSettings
}

// SearchSettings configures the search index connection.
type SearchSettings struct {
	Backend     SearchBackend `validate:"oneof=sqlite weaviate"`
	Scheme      string        `validate:"omitempty,oneof=http https"`
	Host        string        `validate:"required_if=Backend weaviate"`
	Port        int           `validate:"min=0,max=65535"`
	User        string
	Password    string
	VerifyCerts bool
}

// StoreSettings configures the row store.
type StoreSettings struct {
	DataDir       string `validate:"required"`
	BusyTimeoutMS int    `validate:"min=0"`
}

// SyncSettings configures propagation and reindexing.
type SyncSettings struct {
	ClearIndexesOnStartup bool
	MaxAttempts           int     `validate:"min=1"`
	InitialBackoffMS      int     `validate:"min=1"`
	MaxBackoffMS          int     `validate:"gtefield=InitialBackoffMS"`
	PollIntervalMS        int     `validate:"min=10"`
	BatchSize             int     `validate:"min=1,max=1000"`
	IndexRate             float64 `validate:"min=0"`
}

// ServerSettings configures the HTTP server.
type ServerSettings struct {
	Addr string `validate:"required"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level string `validate:"oneof=debug info warn error"`
}

// DefaultSettings returns settings with sensible defaults rooted at home.
func DefaultSettings(home string) Settings {
	return Settings{
		Search: SearchSettings{
			Backend:     SearchBackendSQLite,
			Scheme:      "http",
			Host:        "localhost",
			Port:        8080,
			VerifyCerts: true,
		},
		Store: StoreSettings{
			DataDir:       filepath.Join(home, ".annotext"),
			BusyTimeoutMS: 5000,
		},
		Sync: SyncSettings{
			MaxAttempts:      8,
			InitialBackoffMS: 200,
			MaxBackoffMS:     30000,
			PollIntervalMS:   1000,
			BatchSize:        100,
			IndexRate:        50,
		},
		Server: ServerSettings{Addr: "127.0.0.1:8090"},
		Log:    LogSettings{Level: "warn"},
	}
}

// InitialBackoff returns the first retry delay.
func (s SyncSettings) InitialBackoff() time.Duration {
	return time.Duration(s.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the retry delay cap.
func (s SyncSettings) MaxBackoff() time.Duration {
	return time.Duration(s.MaxBackoffMS) * time.Millisecond
}

// PollInterval returns how often the worker checks for due tasks without a notification.
func (s SyncSettings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}
