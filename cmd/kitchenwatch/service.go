package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"kitchenwatch/internal/browser"
	"kitchenwatch/internal/chrome"
	"kitchenwatch/internal/config"
	"kitchenwatch/internal/dispatch"
	"kitchenwatch/internal/events"
	"kitchenwatch/internal/notify"
	"kitchenwatch/internal/store"
	"kitchenwatch/internal/target"
)

// service is the one wiring point for the whole automation stack. Commands
// construct it once and pass it around explicitly; nothing lives in package
// globals.
type service struct {
	dir          string
	prefsPath    string
	settingsPath string
	prefs        config.Preferences
	settings     config.NotificationSettings

	bus        *events.Bus
	store      *store.Store
	locator    *chrome.Locator
	controller *browser.Controller
	resolver   *target.Resolver
	dispatcher *dispatch.Dispatcher
	monitor    *notify.Monitor
	logger     *zap.Logger
}

// newService loads state from the data directory and wires every component.
func newService(logger *zap.Logger) (*service, error) {
	dir := dataDir
	if dir == "" {
		var err error
		dir, err = config.Dir()
		if err != nil {
			return nil, err
		}
	}

	prefsPath := config.PreferencesPath(dir)
	prefs, err := config.LoadPreferences(prefsPath)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	settingsPath := config.NotificationSettingsPath(dir)
	settings, err := config.LoadNotificationSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load notification settings: %w", err)
	}

	st, err := store.Open(filepath.Join(dir, "kitchen.db"), logger)
	if err != nil {
		return nil, fmt.Errorf("open kitchen database: %w", err)
	}

	catalog := browser.DefaultCatalog()
	if selectorSet != "" {
		catalog, err = browser.LoadCatalog(selectorSet)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("load selector overrides: %w", err)
		}
	}

	bus := events.New()
	locator := chrome.NewLocator(logger)

	cfg := browser.DefaultConfig()
	cfg.ReuseSession = !noReuse
	cfg.ProfileDir = filepath.Join(dir, "browser-profile")
	controller := browser.New(cfg, locator, catalog, bus, logger)

	group := groupName
	if group == "" {
		group = config.TargetGroupName
	}
	resolver := target.NewResolver(controller, group, bus, logger)
	dispatcher := dispatch.NewDispatcher(controller, resolver, bus, logger)
	monitor := notify.NewMonitor(st, dispatcher, bus, logger, settings, settingsPath)

	return &service{
		dir:          dir,
		prefsPath:    prefsPath,
		settingsPath: settingsPath,
		prefs:        prefs,
		settings:     settings,
		bus:          bus,
		store:        st,
		locator:      locator,
		controller:   controller,
		resolver:     resolver,
		dispatcher:   dispatcher,
		monitor:      monitor,
		logger:       logger,
	}, nil
}

// connect establishes the browser session, preferring an attach to a running
// authenticated Chrome over launching a fresh one.
func (s *service) connect(ctx context.Context) error {
	if !browser.ChromeAvailable() {
		return fmt.Errorf("no Chrome or Chromium found on this host; install one or add it to PATH")
	}
	if err := s.controller.Connect(ctx, nil); err != nil {
		return err
	}
	s.recordConnection()
	return nil
}

// recordConnection stamps last_connection in the preferences file.
func (s *service) recordConnection() {
	now := time.Now().UTC()
	s.prefs.LastConnection = &now
	if err := config.SavePreferences(s.prefsPath, s.prefs); err != nil {
		s.logger.Warn("save preferences failed", zap.Error(err))
	}
}

// close tears the stack down in dependency order. The browser is left
// running in session-reuse mode so the next start can reattach.
func (s *service) close() {
	s.monitor.Stop()
	if s.controller.Connected() {
		if err := s.controller.Disconnect(!noReuse); err != nil {
			s.logger.Warn("disconnect failed", zap.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close database failed", zap.Error(err))
	}
}
