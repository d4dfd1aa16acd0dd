package commands

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/mqchat/internal/core/config"
	"github.com/hay-kot/mqchat/internal/printer"
)

func findSetting(t *testing.T, groups []settingGroup, field string) (string, setting) {
	t.Helper()
	for _, g := range groups {
		for _, s := range g.Settings {
			if s.Field == field {
				return g.Name, s
			}
		}
	}
	t.Fatalf("setting %q not reported", field)
	return "", setting{}
}

func TestReport_GroupsErrorsAndWarnings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Broker = "ftp://example.com"
	cfg.Channel = "a/b"
	cfg.ChatDir = t.TempDir()
	cfg.Retain = false
	path := filepath.Join(t.TempDir(), "config.yaml")

	groups, other := report(&cfg, path, cfg.ValidateDeep(path), cfg.Warnings())
	assert.Empty(t, other)

	group, broker := findSetting(t, groups, "broker")
	assert.Equal(t, "Broker", group)
	assert.NotEmpty(t, broker.Error)

	group, channel := findSetting(t, groups, "channel")
	assert.Equal(t, "Identity", group)
	assert.Contains(t, channel.Error, "a/b")

	_, username := findSetting(t, groups, "username")
	assert.Empty(t, username.Error)
	assert.NotEmpty(t, username.Warning, "unset username is a warning")

	group, retain := findSetting(t, groups, "retain")
	assert.Equal(t, "Delivery", group)
	assert.Equal(t, "false", retain.Value)
	assert.NotEmpty(t, retain.Warning)

	group, file := findSetting(t, groups, "config_file")
	assert.Equal(t, "Storage", group)
	assert.Equal(t, path, file.Value)
}

func TestReportText(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Username = "Tony"
	cfg.ChatDir = t.TempDir()

	t.Run("valid", func(t *testing.T) {
		groups, other := report(&cfg, "", nil, cfg.Warnings())

		var buf bytes.Buffer
		reportText(printer.New(&buf), true, groups, other)

		out := buf.String()
		for _, name := range []string{"Broker", "Identity", "Delivery", "Storage"} {
			assert.Contains(t, out, name)
		}
		assert.Contains(t, out, "tcp://localhost:1883")
		assert.Contains(t, out, "(not set)", "empty config path")
		assert.Contains(t, out, "Configuration is valid")
	})

	t.Run("invalid", func(t *testing.T) {
		bad := cfg
		bad.QoS = 5
		err := bad.Validate()
		require.Error(t, err)

		groups, other := report(&bad, "", err, bad.Warnings())

		var buf bytes.Buffer
		reportText(printer.New(&buf), false, groups, other)
		assert.Contains(t, buf.String(), "qos")
		assert.Contains(t, buf.String(), "configuration has 1 invalid setting(s)")
	})
}
