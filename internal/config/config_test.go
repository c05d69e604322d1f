package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultStorageDriver, cfg.Storage.Driver)
	assert.Equal(t, DefaultCaptureWorkers, cfg.Capture.Workers)
	assert.Equal(t, DefaultWebhookName, cfg.Discord.WebhookName)
	assert.True(t, cfg.Postgres.AutoMigrate)
}

func TestLoadDecodesSections(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[storage]
driver = "memory"

[wordfilter]
terms = ["spam", "scam"]
allow = ["scampi"]
min_length = 3

[[wordfilter.rules]]
term = "free\\s+nitro"
mode = "regex"

[wordfilter.ignore]
users = ["42"]

[[msglog.channels]]
id = "100"
description = "mod log"

  [[msglog.channels.monitors]]
  type = "channel"
  id = "200"
  log_message = "{event} in {channel}"
  events = ["messageDelete", "messageUpdate"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, []string{"spam", "scam"}, cfg.WordFilter.Terms)
	assert.Equal(t, 3, cfg.WordFilter.MinLength)
	require.Len(t, cfg.WordFilter.Rules, 1)
	assert.Equal(t, `free\s+nitro`, cfg.WordFilter.Rules[0].Term)
	assert.Equal(t, "regex", cfg.WordFilter.Rules[0].Mode)
	assert.Equal(t, []string{"42"}, cfg.WordFilter.Ignore.Users)
	require.Len(t, cfg.MsgLog.Channels, 1)
	require.Len(t, cfg.MsgLog.Channels[0].Monitors, 1)
	assert.Equal(t, "200", cfg.MsgLog.Channels[0].Monitors[0].ID)
}

func TestLoadEnvOverridesToken(t *testing.T) {
	t.Setenv("SPLAT_DISCORD_TOKEN", "env-token")
	cfg, err := Load(writeConfig(t, `
[discord]
bot_token = "file-token"
`))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Discord.BotToken)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, `
[storage]
driver = "mysql"
`))
	assert.Error(t, err)
}

func TestMsgLogValidate(t *testing.T) {
	t.Parallel()

	valid := MonitorConfig{Type: "user", ID: "1", Events: []string{"messageSend"}}
	tests := []struct {
		name    string
		cfg     MsgLogConfig
		wantErr bool
	}{
		{name: "empty", cfg: MsgLogConfig{}},
		{name: "valid", cfg: MsgLogConfig{Channels: []LogChannelConfig{{ID: "9", Monitors: []MonitorConfig{valid}}}}},
		{name: "missing channel id", cfg: MsgLogConfig{Channels: []LogChannelConfig{{Monitors: []MonitorConfig{valid}}}}, wantErr: true},
		{name: "no monitors", cfg: MsgLogConfig{Channels: []LogChannelConfig{{ID: "9"}}}, wantErr: true},
		{name: "bad type", cfg: MsgLogConfig{Channels: []LogChannelConfig{{ID: "9", Monitors: []MonitorConfig{{Type: "role", ID: "1", Events: []string{"messageSend"}}}}}}, wantErr: true},
		{name: "bad event", cfg: MsgLogConfig{Channels: []LogChannelConfig{{ID: "9", Monitors: []MonitorConfig{{Type: "user", ID: "1", Events: []string{"messageReact"}}}}}}, wantErr: true},
		{name: "duplicate monitor", cfg: MsgLogConfig{Channels: []LogChannelConfig{{ID: "9", Monitors: []MonitorConfig{valid, valid}}}}, wantErr: true},
		{name: "no events", cfg: MsgLogConfig{Channels: []LogChannelConfig{{ID: "9", Monitors: []MonitorConfig{{Type: "guild", ID: "1"}}}}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadMsgLogYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MessageLogger.yaml"), []byte(`# Message logger configuration
channels:
  - id: 112233445566778899
    description: "mod log"
    monitors:
      - type: channel
        id: 998877665544332211
        log_message: "<@&1234> {event}"
        events:
          - messageDelete
          - messageUpdate
`), 0o600))
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[msglog]
file = "MessageLogger.yaml"

[[msglog.channels]]
id = "100"

  [[msglog.channels.monitors]]
  type = "user"
  id = "200"
  events = ["messageSend"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.MsgLog.Channels, 2)
	fromYAML := cfg.MsgLog.Channels[1]
	assert.Equal(t, "112233445566778899", fromYAML.ID)
	require.Len(t, fromYAML.Monitors, 1)
	assert.Equal(t, "998877665544332211", fromYAML.Monitors[0].ID)
	assert.Equal(t, []string{"messageDelete", "messageUpdate"}, fromYAML.Monitors[0].Events)
}

func TestLoadMsgLogYAMLInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
channels:
  - id: 1
    monitors:
      - type: role
        id: 2
        events: [messageSend]
`), 0o600))
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[msglog]\nfile = \"bad.yaml\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[msglog]\nfile = \"missing.yaml\"\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
