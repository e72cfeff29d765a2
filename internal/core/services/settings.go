package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// EnvPrefix prefixes environment overrides: sync.max_attempts is read from
// ANNOTEXT_SYNC_MAX_ATTEMPTS.
const EnvPrefix = "ANNOTEXT_"

// settingsValidate checks the validate tags on domain.Settings.
var settingsValidate = validator.New()

// settingKey binds a config key to a settings field.
type settingKey struct {
	name  string
	field func(*domain.Settings) any
}

// settingKeys lists every supported key in display order.
//
//nolint:gosec // G101: key names, not credentials.
var settingKeys = []settingKey{
	{"search.backend", func(s *domain.Settings) any { return &s.Search.Backend }},
	{"search.scheme", func(s *domain.Settings) any { return &s.Search.Scheme }},
	{"search.host", func(s *domain.Settings) any { return &s.Search.Host }},
	{"search.port", func(s *domain.Settings) any { return &s.Search.Port }},
	{"search.user", func(s *domain.Settings) any { return &s.Search.User }},
	{"search.password", func(s *domain.Settings) any { return &s.Search.Password }},
	{"search.verify_certs", func(s *domain.Settings) any { return &s.Search.VerifyCerts }},
	{"store.data_dir", func(s *domain.Settings) any { return &s.Store.DataDir }},
	{"store.busy_timeout_ms", func(s *domain.Settings) any { return &s.Store.BusyTimeoutMS }},
	{"sync.clear_indexes_on_startup", func(s *domain.Settings) any { return &s.Sync.ClearIndexesOnStartup }},
	{"sync.max_attempts", func(s *domain.Settings) any { return &s.Sync.MaxAttempts }},
	{"sync.initial_backoff_ms", func(s *domain.Settings) any { return &s.Sync.InitialBackoffMS }},
	{"sync.max_backoff_ms", func(s *domain.Settings) any { return &s.Sync.MaxBackoffMS }},
	{"sync.poll_interval_ms", func(s *domain.Settings) any { return &s.Sync.PollIntervalMS }},
	{"sync.batch_size", func(s *domain.Settings) any { return &s.Sync.BatchSize }},
	{"sync.index_rate", func(s *domain.Settings) any { return &s.Sync.IndexRate }},
	{"server.addr", func(s *domain.Settings) any { return &s.Server.Addr }},
	{"log.level", func(s *domain.Settings) any { return &s.Log.Level }},
}

// SettingsService resolves settings from defaults, the config store and
// the environment, in that order of precedence.
type SettingsService struct {
	configStore driven.ConfigStore
	home        string
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a settings service. Defaults are rooted at home.
func NewSettingsService(configStore driven.ConfigStore, home string) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		home:        home,
		lookupEnv:   os.LookupEnv,
	}
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Get returns the effective settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings(s.home)

	for _, k := range settingKeys {
		if _, ok := s.configStore.Get(k.name); ok {
			s.load(k.field(&settings), k.name)
		}
		if v, ok := s.lookupEnv(EnvName(k.name)); ok {
			if err := parseInto(k.field(&settings), v); err != nil {
				return nil, fmt.Errorf("%s: %w", EnvName(k.name), err)
			}
		}
	}

	return &settings, nil
}

// load copies a config store value into the field p points to.
func (s *SettingsService) load(p any, key string) {
	switch f := p.(type) {
	case *string:
		*f = s.configStore.GetString(key)
	case *domain.SearchBackend:
		*f = domain.SearchBackend(s.configStore.GetString(key))
	case *int:
		*f = s.configStore.GetInt(key)
	case *float64:
		*f = s.configStore.GetFloat(key)
	case *bool:
		*f = s.configStore.GetBool(key)
	}
}

// Save validates and persists every key.
func (s *SettingsService) Save(settings *domain.Settings) error {
	if err := s.Validate(settings); err != nil {
		return err
	}
	for _, k := range settingKeys {
		if err := s.configStore.Set(k.name, valueOf(k.field(settings))); err != nil {
			return fmt.Errorf("save %s: %w", k.name, err)
		}
	}
	return nil
}

// Set parses value for key, validates the result and persists that key only.
func (s *SettingsService) Set(key, value string) error {
	k, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrValidation, key)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	p := k.field(settings)
	if err := parseInto(p, value); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrValidation, key, err)
	}
	if err := s.Validate(settings); err != nil {
		return err
	}
	return s.configStore.Set(key, valueOf(p))
}

// Validate checks settings against their constraints.
func (s *SettingsService) Validate(settings *domain.Settings) error {
	err := settingsValidate.Struct(settings)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings(s.home)
}

// Keys returns every supported key in display order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, len(settingKeys))
	for i, k := range settingKeys {
		keys[i] = k.name
	}
	return keys
}

// Value returns the display value of key in settings. Passwords are masked.
func Value(settings *domain.Settings, key string) (string, bool) {
	k, ok := lookupKey(key)
	if !ok {
		return "", false
	}
	v := fmt.Sprint(valueOf(k.field(settings)))
	if key == "search.password" && v != "" {
		v = "********"
	}
	return v, true
}

func lookupKey(name string) (settingKey, bool) {
	for _, k := range settingKeys {
		if k.name == name {
			return k, true
		}
	}
	return settingKey{}, false
}

func parseInto(p any, value string) error {
	switch f := p.(type) {
	case *string:
		*f = value
	case *domain.SearchBackend:
		*f = domain.SearchBackend(value)
	case *int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("not an integer: %q", value)
		}
		*f = n
	case *float64:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", value)
		}
		*f = n
	case *bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", value)
		}
		*f = b
	}
	return nil
}

func valueOf(p any) any {
	switch f := p.(type) {
	case *string:
		return *f
	case *domain.SearchBackend:
		return string(*f)
	case *int:
		return *f
	case *float64:
		return *f
	case *bool:
		return *f
	}
	return nil
}
