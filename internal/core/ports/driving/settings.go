package driving

import "github.com/custodia-labs/annotext/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the effective settings: defaults, then the config file,
	// then environment overrides.
	Get() (*domain.Settings, error)

	// Save persists settings to the config file.
	Save(settings *domain.Settings) error

	// Set parses and stores a single key such as "sync.max_attempts".
	Set(key, value string) error

	// Validate checks settings for consistency.
	Validate(settings *domain.Settings) error

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings

	// Keys returns every supported key in display order.
	Keys() []string
}
