package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scorelink/internal/models"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer collects log output written from several goroutines
type syncBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func newTestWatcher(t *testing.T, path string) (*ConfigWatcher, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	logger := logrus.New()
	logger.SetOutput(out)
	return NewConfigWatcher(path, logger), out
}

func TestNewConfigWatcher(t *testing.T) {
	watcher, _ := newTestWatcher(t, "/path/to/config.json")

	assert.Equal(t, "/path/to/config.json", watcher.configPath)
	assert.Equal(t, defaultWatchInterval, watcher.interval)
	assert.NotNil(t, watcher.callbacks)
	assert.Len(t, watcher.callbacks, 0)
	assert.Nil(t, watcher.GetConfig())
}

func TestConfigWatcher_Start_InvalidPath(t *testing.T) {
	watcher, _ := newTestWatcher(t, "/nonexistent/config.json")
	assert.Error(t, watcher.Start(context.Background()))
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, validConfigJSON)
	watcher, out := newTestWatcher(t, path)
	clk := clock.NewMock()
	watcher.clock = clk

	changed := make(chan *models.Config, 1)
	watcher.OnConfigChange(func(c *models.Config) { changed <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "debug", watcher.GetConfig().LogLevel)

	updated := strings.Replace(validConfigJSON, `"log_level": "debug"`, `"log_level": "warn"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	var reloaded *models.Config
	require.Eventually(t, func() bool {
		clk.Add(defaultWatchInterval)
		select {
		case reloaded = <-changed:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "warn", reloaded.LogLevel)
	assert.Equal(t, "warn", watcher.GetConfig().LogLevel)
	assert.Contains(t, out.String(), "Log level changed")

	cancel()
	assert.NoError(t, <-done)
}

func TestConfigWatcher_ReloadConfig_InvalidFile(t *testing.T) {
	path := writeConfig(t, validConfigJSON)
	watcher, out := newTestWatcher(t, path)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	watcher.config = config

	called := false
	watcher.OnConfigChange(func(*models.Config) { called = true })

	require.NoError(t, os.WriteFile(path, []byte(`{"node": `), 0600))
	watcher.reloadConfig()

	assert.False(t, called)
	assert.Same(t, config, watcher.GetConfig())
	assert.Contains(t, out.String(), "Failed to reload configuration")
}

func TestConfigWatcher_CallbackPanic(t *testing.T) {
	path := writeConfig(t, validConfigJSON)
	watcher, out := newTestWatcher(t, path)

	second := false
	watcher.OnConfigChange(func(*models.Config) { panic("boom") })
	watcher.OnConfigChange(func(*models.Config) { second = true })

	watcher.reloadConfig()

	assert.True(t, second)
	assert.Contains(t, out.String(), "Config change callback panicked")
}

func TestConfigWatcher_LogConfigChanges(t *testing.T) {
	watcher, out := newTestWatcher(t, "/path/to/config.json")

	oldConfig := &models.Config{
		Node:      models.NodeConfig{ID: "watch"},
		Transport: models.TransportConfig{Peers: []string{"ws://a/ws"}},
		LogLevel:  "info",
	}
	newConfig := &models.Config{
		Node:      models.NodeConfig{ID: "watch-2"},
		Transport: models.TransportConfig{Peers: []string{"ws://a/ws", "ws://b/ws"}},
		LogLevel:  "debug",
	}

	watcher.logConfigChanges(oldConfig, newConfig)

	logStr := out.String()
	assert.Contains(t, logStr, "Log level changed")
	assert.Contains(t, logStr, "Node or database settings changed")
	assert.Contains(t, logStr, "Peer list changed")
}

func TestConfigWatcher_LogConfigChanges_NilOldConfig(t *testing.T) {
	watcher, out := newTestWatcher(t, "/path/to/config.json")

	watcher.logConfigChanges(nil, &models.Config{LogLevel: "debug"})
	assert.Equal(t, "", out.String())
}

func TestConfigWatcher_DirectoryPathRejected(t *testing.T) {
	watcher, _ := newTestWatcher(t, filepath.Join(t.TempDir(), ".."))
	assert.Error(t, watcher.Start(context.Background()))
}
