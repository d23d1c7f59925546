package modelsync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(`
api_url: https://api.example.com
locale: de
move_debounce: 250ms
http_timeout: 10s
reconnect_timeout: 1s
`))
	assert.Equal(t, err, nil)
	assert.Equal(t, config.ApiUrl, "https://api.example.com")
	// unset values keep their defaults
	assert.Equal(t, config.WsUrl, "ws://localhost:8000")
	assert.Equal(t, config.Locale, "de")
	assert.Equal(t, config.MoveDebounce, 250*time.Millisecond)

	settings := config.SessionSettings()
	assert.Equal(t, settings.MoveDebounce, 250*time.Millisecond)
	assert.Equal(t, settings.Api.HttpTimeout, 10*time.Second)
	assert.Equal(t, settings.Channel.ReconnectTimeout, time.Second)
	assert.Equal(t, settings.Channel.PingTimeout, DefaultChannelSettings().PingTimeout)

	runsSettings := config.AdjustmentRunsSettings()
	assert.Equal(t, runsSettings.Api.HttpTimeout, 10*time.Second)
	assert.Equal(t, runsSettings.Channel.ReconnectTimeout, time.Second)

	assert.Equal(t, config.ClientContext().AcceptLanguage(), "de")
}

func TestParseConfigErrors(t *testing.T) {
	_, err := ParseConfig([]byte(`api_url: ""`))
	assert.NotEqual(t, err, nil)

	_, err = ParseConfig([]byte(`move_debounce: soon`))
	assert.NotEqual(t, err, nil)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelctl.yml")
	err := os.WriteFile(path, []byte("ws_url: wss://live.example.com\n"), 0600)
	assert.Equal(t, err, nil)

	config, err := LoadConfig(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, config.WsUrl, "wss://live.example.com")
	assert.Equal(t, config.ApiUrl, DefaultConfig().ApiUrl)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.NotEqual(t, err, nil)
}
