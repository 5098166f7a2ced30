package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSettingsMissingFileReturnsDefaults(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.Control.PortStart != 64120 || settings.Control.PortEnd != 64130 {
		t.Fatalf("unexpected default range %d-%d", settings.Control.PortStart, settings.Control.PortEnd)
	}
	if !settings.Notifications.Enabled {
		t.Fatal("notifications should be enabled by default")
	}
}

func TestLoadSettingsOverridesOnlyPresentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	data := []byte("ide:\n  name: IntelliJ IDEA\n  version: \"2021.1\"\n  edition: Ultimate\nnotifications:\n  poll_interval: 2m\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if settings.IDE.Name != "IntelliJ IDEA" || settings.IDE.Edition != "Ultimate" {
		t.Fatalf("unexpected ide settings %+v", settings.IDE)
	}
	if settings.Notifications.PollInterval != 2*time.Minute {
		t.Fatalf("PollInterval = %v, want 2m", settings.Notifications.PollInterval)
	}
	if settings.Control.PortStart != 64120 {
		t.Fatalf("port start should keep default, got %d", settings.Control.PortStart)
	}
}

func TestLoadSettingsRejectsInvertedRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("control:\n  port_start: 9000\n  port_end: 8000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected error for inverted port range")
	}
}

func TestValidateClampsPollInterval(t *testing.T) {
	settings := DefaultSettings()
	settings.Notifications.PollInterval = time.Millisecond
	if err := settings.Validate(); err != nil {
		t.Fatal(err)
	}
	if settings.Notifications.PollInterval != 5*time.Second {
		t.Fatalf("PollInterval = %v, want clamp to 5s", settings.Notifications.PollInterval)
	}
}

func TestSettingsWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := WriteSettings(path, DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	changed := make(chan Settings, 4)
	w, err := NewSettingsWatcher(path, func(s Settings) { changed <- s })
	if err != nil {
		t.Fatalf("NewSettingsWatcher: %v", err)
	}
	w.Start()
	defer w.Close()

	updated := DefaultSettings()
	updated.IDE.Edition = "Community"
	if err := WriteSettings(path, updated); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-changed:
		if s.IDE.Edition != "Community" {
			t.Fatalf("reloaded edition = %q, want Community", s.IDE.Edition)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settings reload")
	}
}
