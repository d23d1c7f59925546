package modelsync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// durations use Go duration strings, e.g. `500ms`
type Config struct {
	ApiUrl string `yaml:"api_url"`
	WsUrl  string `yaml:"ws_url"`
	Locale string `yaml:"locale"`
	Jwt    string `yaml:"jwt"`

	MoveDebounce     time.Duration `yaml:"move_debounce"`
	HttpTimeout      time.Duration `yaml:"http_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		ApiUrl: "http://localhost:8000",
		WsUrl:  "ws://localhost:8000",
		Locale: DefaultLocale,
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// values missing from `data` keep their defaults
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if config.ApiUrl == "" {
		return nil, fmt.Errorf("config: api_url is required")
	}
	return config, nil
}

func (self *Config) ClientContext() *ClientContext {
	return NewClientContext(self.Locale, self.Jwt)
}

// session settings with the configured overrides applied
func (self *Config) SessionSettings() *SessionSettings {
	settings := DefaultSessionSettings()
	if 0 < self.MoveDebounce {
		settings.MoveDebounce = self.MoveDebounce
	}
	if 0 < self.HttpTimeout {
		settings.Api.HttpTimeout = self.HttpTimeout
	}
	self.applyChannel(settings.Channel)
	return settings
}

func (self *Config) AdjustmentRunsSettings() *AdjustmentRunsSettings {
	settings := DefaultAdjustmentRunsSettings()
	if 0 < self.HttpTimeout {
		settings.Api.HttpTimeout = self.HttpTimeout
	}
	self.applyChannel(settings.Channel)
	return settings
}

func (self *Config) applyChannel(settings *ChannelSettings) {
	if 0 < self.HandshakeTimeout {
		settings.HandshakeTimeout = self.HandshakeTimeout
	}
	if 0 < self.ReconnectTimeout {
		settings.ReconnectTimeout = self.ReconnectTimeout
	}
	if 0 < self.PingTimeout {
		settings.PingTimeout = self.PingTimeout
	}
	if 0 < self.ReadTimeout {
		settings.ReadTimeout = self.ReadTimeout
	}
}
