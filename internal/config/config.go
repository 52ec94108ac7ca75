// Package config owns the two JSON state files kitchenwatch persists:
// connection preferences and notification settings. Both follow explicit
// load-at-startup / save-on-change semantics and must survive restarts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AppDirName is the directory under the OS user config dir that holds all
// kitchenwatch state (preferences, settings, the persistent Chrome profile).
const AppDirName = "kitchenwatch"

// TargetGroupName is the single fixed destination conversation. Every
// notification this program sends goes to this group.
const TargetGroupName = "Abiram's Kitchen"

const (
	preferencesFile          = "preferences.json"
	notificationSettingsFile = "notification_settings.json"
)

// Preferences holds connection-level user choices.
type Preferences struct {
	// AutoConnect attaches to a discovered Chrome session at startup without
	// an explicit connect action from the user.
	AutoConnect bool `json:"auto_connect"`

	// SetupCompleted records that the first-run wizard finished once.
	SetupCompleted bool `json:"setup_completed"`

	// SkipSetup suppresses the first-run wizard entirely.
	SkipSetup bool `json:"skip_setup"`

	// LastConnection is the time of the last successful attach, or nil.
	LastConnection *time.Time `json:"last_connection"`

	// AbiramsKitchenEnabled gates all sends to the target group.
	AbiramsKitchenEnabled bool `json:"abirams_kitchen_enabled"`
}

// DefaultPreferences returns the first-run preference state.
func DefaultPreferences() Preferences {
	return Preferences{
		AutoConnect:           true,
		AbiramsKitchenEnabled: true,
	}
}

// NotificationSettings holds per-category enable flags, the poll interval,
// and the persisted cooldown registry (last send time per notification key).
type NotificationSettings struct {
	LowStockEnabled          bool `json:"low_stock_enabled"`
	CleaningRemindersEnabled bool `json:"cleaning_reminders_enabled"`
	PackingMaterialsEnabled  bool `json:"packing_materials_enabled"`
	GasLevelWarningsEnabled  bool `json:"gas_level_warnings_enabled"`

	// CheckIntervalMinutes is the monitor poll interval.
	CheckIntervalMinutes int `json:"check_interval_minutes"`

	// LastNotificationTimes maps notification key to the last attempted send
	// (RFC3339). Mutated only by the notification monitor.
	LastNotificationTimes map[string]time.Time `json:"last_notification_times"`
}

// DefaultNotificationSettings enables every category at a 30 minute interval.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		LowStockEnabled:          true,
		CleaningRemindersEnabled: true,
		PackingMaterialsEnabled:  true,
		GasLevelWarningsEnabled:  true,
		CheckIntervalMinutes:     30,
		LastNotificationTimes:    make(map[string]time.Time),
	}
}

// Dir returns the kitchenwatch state directory, creating it if needed.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	dir := filepath.Join(base, AppDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// PreferencesPath returns the preferences file path inside dir.
func PreferencesPath(dir string) string {
	return filepath.Join(dir, preferencesFile)
}

// NotificationSettingsPath returns the settings file path inside dir.
func NotificationSettingsPath(dir string) string {
	return filepath.Join(dir, notificationSettingsFile)
}

// LoadPreferences reads preferences from path. A missing file yields defaults.
func LoadPreferences(path string) (Preferences, error) {
	prefs := DefaultPreferences()
	if err := loadJSON(path, &prefs); err != nil {
		return DefaultPreferences(), err
	}
	return prefs, nil
}

// SavePreferences writes preferences to path.
func SavePreferences(path string, prefs Preferences) error {
	return saveJSON(path, prefs)
}

// LoadNotificationSettings reads settings from path. A missing file yields
// defaults; a nil cooldown map is replaced with an empty one so callers can
// always index into it.
func LoadNotificationSettings(path string) (NotificationSettings, error) {
	settings := DefaultNotificationSettings()
	if err := loadJSON(path, &settings); err != nil {
		return DefaultNotificationSettings(), err
	}
	if settings.LastNotificationTimes == nil {
		settings.LastNotificationTimes = make(map[string]time.Time)
	}
	if settings.CheckIntervalMinutes <= 0 {
		settings.CheckIntervalMinutes = DefaultNotificationSettings().CheckIntervalMinutes
	}
	return settings, nil
}

// SaveNotificationSettings writes settings to path.
func SaveNotificationSettings(path string, settings NotificationSettings) error {
	return saveJSON(path, settings)
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", filepath.Base(path), err)
	}
	// Write-then-rename so a crash mid-write cannot truncate the live file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
