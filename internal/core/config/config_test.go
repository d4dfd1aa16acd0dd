package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load("", dataDir)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.Broker)
	assert.Equal(t, "chat", cfg.Channel)
	assert.Equal(t, "todos", cfg.BroadcastLabel)
	assert.Equal(t, filepath.Join(dataDir, "chats"), cfg.ChatDir)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, byte(0), cfg.QoS)
	assert.True(t, cfg.Retain)
	assert.True(t, cfg.SerializeHandlers)
	assert.Equal(t, 64, cfg.DispatchBuffer)
	assert.Empty(t, cfg.Username)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "chat", cfg.Channel)
}

func TestLoad_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `broker: tcp://broker.example:1883
username: Sam
channel: team
connect_timeout: 10s
retain: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker.example:1883", cfg.Broker)
	assert.Equal(t, "Sam", cfg.Username)
	assert.Equal(t, "team", cfg.Channel)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.False(t, cfg.Retain)
	assert.Equal(t, "todos", cfg.BroadcastLabel, "unset fields keep defaults")
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoad_InvalidFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bad yaml", content: "broker: [", want: "parse config file"},
		{name: "bad duration", content: "connect_timeout: soon", want: "parse config file"},
		{name: "bad username", content: "username: a/b", want: "invalid config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path, t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Username = "Tony"
	cfg.Broker = "tcp://10.0.0.5:1883"
	cfg.ConnectTimeout = Duration(3 * time.Second)
	cfg.ChatDir = filepath.Join(dir, "chats")

	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "connect_timeout: 3s")
	assert.NotContains(t, string(data), "datadir")

	loaded, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Username, loaded.Username)
	assert.Equal(t, cfg.Broker, loaded.Broker)
	assert.Equal(t, 3*time.Second, loaded.Timeout())
	assert.Equal(t, cfg.ChatDir, loaded.ChatDir)
}
