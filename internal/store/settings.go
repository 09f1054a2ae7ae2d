package store

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/metrics"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// SettingsNamespace is the kv key user settings are persisted under.
const SettingsNamespace = "chimera-settings-storage"

const settingsVersion = 0

// ExportFormat selects the encoding of a settings export.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// persistedSettings is the envelope written to the kv table.
type persistedSettings struct {
	State struct {
		Settings models.UserSettings `json:"settings"`
	} `json:"state"`
	Version int `json:"version"`
}

// SettingsStore holds the user's profile and retention settings and writes
// them through to SQLite after every change. With a nil DB it keeps them in
// memory only.
type SettingsStore struct {
	mu        sync.Mutex
	db        *DB
	namespace string
	log       *logger.Logger
	metrics   *metrics.Collector

	settings models.UserSettings
}

// NewSettingsStore loads previously persisted settings, falling back to the
// defaults when nothing was stored yet.
func NewSettingsStore(db *DB, namespace string, log *logger.Logger, m *metrics.Collector) (*SettingsStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if namespace == "" {
		namespace = SettingsNamespace
	}
	s := &SettingsStore{
		db:        db,
		namespace: namespace,
		log:       log.With("store", "settings"),
		metrics:   m,
		settings:  models.DefaultSettings(),
	}
	if db == nil {
		return s, nil
	}

	raw, _, ok, err := db.Get(namespace)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if ok {
		var p persistedSettings
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
		s.settings = p.State.Settings
	}
	return s, nil
}

func (s *SettingsStore) Settings() models.UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *SettingsStore) UpdateProfile(name, email string) error {
	p := models.Profile{Name: name, Email: email}
	if err := Validate("update profile", p); err != nil {
		return err
	}
	return s.mutate("update_profile", func(us *models.UserSettings) { us.Profile = p })
}

func (s *SettingsStore) UpdateMemoryRetention(autoStore bool, retentionPeriod string) error {
	r := models.MemoryRetention{AutoStore: autoStore, RetentionPeriod: retentionPeriod}
	if err := Validate("update memory retention", r); err != nil {
		return err
	}
	return s.mutate("update_retention", func(us *models.UserSettings) { us.MemoryRetention = r })
}

// DeleteAccount resets every setting to its default.
func (s *SettingsStore) DeleteAccount() error {
	return s.mutate("delete_account", func(us *models.UserSettings) { *us = models.DefaultSettings() })
}

// Export writes the current settings to w.
func (s *SettingsStore) Export(w io.Writer, format ExportFormat) error {
	settings := s.Settings()
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(settings)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(settings); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errs.Invalid("export settings", "unsupported format "+string(format))
	}
}

// ExportFileName is the suggested download name for an export taken at now.
func ExportFileName(now time.Time, format ExportFormat) string {
	if format == "" {
		format = FormatJSON
	}
	return fmt.Sprintf("chimera-protocol-data-%s.%s", now.UTC().Format("2006-01-02"), format)
}

// mutate applies fn and persists the result. A failed write rolls the change
// back so memory and disk never disagree.
func (s *SettingsStore) mutate(op string, fn func(*models.UserSettings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.settings
	fn(&s.settings)
	if err := s.persistLocked(); err != nil {
		s.settings = prev
		s.log.Error("persist settings failed", "op", op, "error", err)
		return err
	}
	s.metrics.RecordMutation("settings", op)
	return nil
}

func (s *SettingsStore) persistLocked() error {
	if s.db == nil {
		return nil
	}
	var p persistedSettings
	p.State.Settings = s.settings
	p.Version = settingsVersion
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.db.Put(s.namespace, string(data), settingsVersion)
}
