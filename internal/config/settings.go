package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codescan-io/lintbridge/internal/constants"
)

// Settings is the daemon-wide configuration loaded from settings.yaml.
type Settings struct {
	IDE           IDESettings          `yaml:"ide"`
	Control       ControlSettings      `yaml:"control"`
	Notifications NotificationSettings `yaml:"notifications"`
}

// IDESettings describes the identity reported by the status endpoint.
type IDESettings struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Edition string `yaml:"edition"`
}

// ControlSettings configures the loopback control server.
type ControlSettings struct {
	Enabled   bool `yaml:"enabled"`
	PortStart int  `yaml:"port_start"`
	PortEnd   int  `yaml:"port_end"`
}

// NotificationSettings configures server notification polling.
type NotificationSettings struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		IDE: IDESettings{
			Name:    "lintbridge",
			Version: "dev",
		},
		Control: ControlSettings{
			Enabled:   true,
			PortStart: constants.ControlPortStart,
			PortEnd:   constants.ControlPortEnd,
		},
		Notifications: NotificationSettings{
			Enabled:      true,
			PollInterval: constants.DefaultNotificationPollInterval,
		},
	}
}

// LoadSettings reads the YAML settings file at path. A missing file yields
// DefaultSettings. Keys absent from the file keep their default values.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if strings.TrimSpace(path) == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("config: read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("config: parse settings %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return DefaultSettings(), err
	}
	return settings, nil
}

// Validate checks ranges and clamps the poll interval.
func (s *Settings) Validate() error {
	if s.Control.PortStart <= 0 || s.Control.PortStart > 65535 {
		return fmt.Errorf("config: control.port_start %d out of range", s.Control.PortStart)
	}
	if s.Control.PortEnd < s.Control.PortStart || s.Control.PortEnd > 65535 {
		return fmt.Errorf("config: control.port_end %d must be within [%d, 65535]", s.Control.PortEnd, s.Control.PortStart)
	}
	if s.Notifications.PollInterval <= 0 {
		s.Notifications.PollInterval = constants.DefaultNotificationPollInterval
	}
	if s.Notifications.PollInterval < constants.MinNotificationPollInterval {
		s.Notifications.PollInterval = constants.MinNotificationPollInterval
	}
	return nil
}

// WriteSettings persists settings to path as YAML.
func WriteSettings(path string, settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write settings: %w", err)
	}
	return nil
}
