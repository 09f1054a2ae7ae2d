package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "chimera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CHIMERA_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8742, cfg.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "chimera-settings-storage", cfg.Settings.Namespace)
	assert.Equal(t, 3*time.Second, cfg.Transition.Duration)
	assert.Equal(t, 50*time.Millisecond, cfg.Transition.Interval)
	assert.Equal(t, "simulated", cfg.Embedding.Provider)
	assert.Equal(t, 0.8, cfg.Probe.SuccessRate)
	assert.Equal(t, uint32(5), cfg.ConversationAPI.Breaker.MinRequests)
	assert.Empty(t, cfg.ConversationAPI.URL)
	assert.Empty(t, cfg.File)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
port: 9000
log:
  level: debug
transition:
  duration: 1s
  interval: 10ms
conversation_api:
  url: http://conversations.internal
  breaker:
    failure_threshold: 0.5
embedding:
  provider: ollama
`)
	t.Setenv("CHIMERA_LOG_LEVEL", "warn")
	t.Setenv("CHIMERA_PROBE_MODE", "http")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "warn", cfg.Log.Level, "env beats file")
	assert.Equal(t, "http", cfg.Probe.Mode)
	assert.Equal(t, time.Second, cfg.Transition.Duration)
	assert.Equal(t, 10*time.Millisecond, cfg.Transition.Interval)
	assert.Equal(t, "http://conversations.internal", cfg.ConversationAPI.URL)
	assert.Equal(t, 0.5, cfg.ConversationAPI.Breaker.FailureThreshold)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, path, cfg.File)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"bad port", "port: 70000", "port must be between"},
		{"interval", "transition:\n  interval: 0s", "transition.interval"},
		{"duration shorter than interval", "transition:\n  duration: 10ms\n  interval: 50ms", "transition.duration"},
		{"provider", "embedding:\n  provider: openai", "embedding.provider"},
		{"probe mode", "probe:\n  mode: live", "probe.mode"},
		{"success rate", "probe:\n  success_rate: 1.5", "probe.success_rate"},
		{"exporter", "tracing:\n  exporter: jaeger", "tracing.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log:\n  level: info\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(cfg, nil)
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan *Config, 4)
	w.OnChange(func(c *Config) { changed <- c })

	// An invalid edit is skipped.
	writeConfig(t, dir, "port: -1\n")
	select {
	case c := <-changed:
		t.Fatalf("unexpected reload with port %d", c.Port)
	case <-time.After(3 * debounceDelay):
	}

	writeConfig(t, dir, "log:\n  level: debug\n")
	select {
	case c := <-changed:
		assert.Equal(t, "debug", c.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not delivered")
	}
	assert.Equal(t, "debug", w.Current().Log.Level)
}

func TestWatcher_RequiresFile(t *testing.T) {
	_, err := NewWatcher(&Config{}, nil)
	assert.Error(t, err)
}
