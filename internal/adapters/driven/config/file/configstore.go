package file

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// FileName is the configuration file inside the config directory.
const FileName = "config.toml"

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore keeps settings in a TOML file. Keys are flat and dotted in
// memory ("search.port") and written as nested tables ([search] port).
type ConfigStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
}

// NewConfigStore opens dir/config.toml, creating dir when needed.
// An empty dir means ~/.annotext.
func NewConfigStore(dir string) (*ConfigStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate home directory: %w", err)
		}
		dir = filepath.Join(home, ".annotext")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	s := &ConfigStore{path: filepath.Join(dir, FileName)}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the raw value stored under key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *ConfigStore) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

func (s *ConfigStore) GetInt(key string) int {
	n, _ := number(s.Get(key))
	return int(n)
}

// GetFloat widens integers, so "index_rate = 50" reads as 50.0.
func (s *ConfigStore) GetFloat(key string) float64 {
	n, _ := number(s.Get(key))
	return n
}

func (s *ConfigStore) GetBool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// number converts the numeric types TOML decoding and Set callers produce.
func number(v any, ok bool) (float64, bool) {
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Keys returns the stored keys sorted.
func (s *ConfigStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Set stores value under key and writes the file.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.write()
}

// Save writes the file.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write()
}

// write replaces the file through a temporary sibling so a crash never
// leaves it half written. The file may hold the search password, hence 0600.
// Callers hold mu.
func (s *ConfigStore) write() error {
	data, err := toml.Marshal(nestMap(s.values))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load rereads the file. A missing file loads as empty.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.values = make(map[string]any)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var tables map[string]any
	if err := toml.Unmarshal(data, &tables); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.values = flattenMap(tables, "")
	return nil
}

// Path returns the file location.
func (s *ConfigStore) Path() string {
	return s.path
}

// flattenMap turns nested tables into dotted keys: {"a": {"b": 1}} is
// {"a.b": 1}.
func flattenMap(tables map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for name, v := range tables {
		if prefix != "" {
			name = prefix + "." + name
		}
		if sub, ok := v.(map[string]any); ok {
			maps.Copy(out, flattenMap(sub, name))
			continue
		}
		out[name] = v
	}
	return out
}

// nestMap reverses flattenMap. When a key is both a value and the prefix
// of a deeper key, the value is kept and the deeper key dropped.
func nestMap(flat map[string]any) map[string]any {
	keys := slices.Collect(maps.Keys(flat))
	slices.SortFunc(keys, func(a, b string) int { return len(a) - len(b) })

	out := make(map[string]any)
next:
	for _, key := range keys {
		path := strings.Split(key, ".")
		table := out
		for _, name := range path[:len(path)-1] {
			child, ok := table[name]
			if !ok {
				child = make(map[string]any)
				table[name] = child
			}
			sub, ok := child.(map[string]any)
			if !ok {
				continue next
			}
			table = sub
		}
		table[path[len(path)-1]] = flat[key]
	}
	return out
}
