package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// AccountKeys are the fields the account profile is derived from.
var AccountKeys = []string{
	"available_balance",
	"max_leverage",
	"default_position_size",
	"default_symbol",
	"default_exchange",
	"default_interval",
}

// Change describes one applied configuration update.
type Change struct {
	Old  Config
	New  Config
	Keys []string
}

// Touches reports whether any of keys changed.
func (c Change) Touches(keys ...string) bool {
	for _, k := range keys {
		if slices.Contains(c.Keys, k) {
			return true
		}
	}
	return false
}

// ChangedKeys lists the JSON keys whose values differ between a and b, sorted.
func ChangedKeys(a, b Config) []string {
	am, bm := fieldMap(a), fieldMap(b)
	var keys []string
	for k, v := range am {
		if !bytes.Equal(v, bm[k]) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func fieldMap(cfg Config) map[string]json.RawMessage {
	data, _ := json.Marshal(cfg)
	m := map[string]json.RawMessage{}
	_ = json.Unmarshal(data, &m)
	return m
}

// Manager keeps a Config in sync with a JSON file. Keys missing from the file
// keep the value of the base config, so a file may hold only the overrides.
type Manager struct {
	path     string
	base     Config
	debounce time.Duration
	log      zerolog.Logger

	mu       sync.RWMutex
	cfg      Config
	onChange func(Change)
	watching bool
}

type ManagerOption func(*Manager)

// WithBase sets the config the file is decoded over. It is also what gets
// written when the file does not exist yet.
func WithBase(cfg *Config) ManagerOption {
	return func(m *Manager) {
		if cfg != nil {
			m.base = *cfg
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// NewManager loads path, creating it from the base config when missing.
// The default base is DefaultConfigWithRoot of the file's directory.
func NewManager(path string, opts ...ManagerOption) (*Manager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	m := &Manager{
		path:     path,
		base:     *DefaultConfigWithRoot(filepath.Dir(path)),
		debounce: 300 * time.Millisecond,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().Str("component", "config").Logger()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := m.load()
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = m.base
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
		m.log.Info().Str("path", path).Msg("config file created")
	case err != nil:
		return nil, err
	}
	m.cfg = cfg
	return m, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// UpdateFromJSON applies a partial JSON document over the current config.
func (m *Manager) UpdateFromJSON(doc string) error {
	cfg := clone(m.Get())
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(cfg)
}

// Update validates cfg, persists it and notifies the watcher.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(m.Get(), cfg) {
		return nil
	}
	if err := writeConfigFile(m.path, cfg); err != nil {
		return err
	}
	m.apply(cfg)
	return nil
}

// Watch reloads the file whenever it changes on disk and calls onChange for
// every reload that alters the config. Invalid files are logged and skipped.
// Only one watch may run per Manager.
func (m *Manager) Watch(ctx context.Context, onChange func(Change)) error {
	m.mu.Lock()
	if m.watching {
		m.mu.Unlock()
		return errors.New("config is already watched")
	}
	m.watching = true
	m.onChange = onChange
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	// The directory is watched so that atomic renames are seen.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(m.debounce, m.reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn().Err(err).Msg("config watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) reload() {
	cfg, err := m.load()
	if err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("keeping current config")
		return
	}
	m.apply(cfg)
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	old := m.cfg
	if reflect.DeepEqual(old, cfg) {
		m.mu.Unlock()
		return
	}
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	change := Change{Old: old, New: cfg, Keys: ChangedKeys(old, cfg)}
	m.log.Info().Strs("keys", change.Keys).Msg("config changed")
	if cb != nil {
		cb(change)
	}
}

// load decodes the file over the base config and validates the result.
func (m *Manager) load() (Config, error) {
	cfg := clone(m.base)
	if err := loadConfigFromFile(m.path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", m.path, err)
	}
	return cfg, nil
}

func loadConfigFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// clone copies cfg so decoding into it never writes through shared slices.
func clone(cfg Config) Config {
	cfg.InterruptOn = slices.Clone(cfg.InterruptOn)
	return cfg
}

func writeConfigFile(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
