package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"kitchenwatch/internal/config"
	"kitchenwatch/internal/dispatch"
	"kitchenwatch/internal/events"
	"kitchenwatch/internal/store"
)

// DataSource supplies the current kitchen data snapshot.
type DataSource interface {
	Snapshot(ctx context.Context) (store.Snapshot, error)
}

// Sender is the slice of the dispatcher the monitor needs.
type Sender interface {
	Send(ctx context.Context, text string) (*dispatch.Receipt, error)
}

// Monitor runs the poll loop and the real-time trigger entry points. Both
// paths funnel through one critical section so two near-simultaneous checks
// cannot each pass the cooldown gate before either records an attempt.
type Monitor struct {
	source DataSource
	sender Sender
	bus    *events.Bus
	logger *zap.Logger

	// settingsPath is where cooldown timestamps are persisted; empty
	// disables persistence (tests).
	settingsPath string

	now func() time.Time

	// mu guards settings, registry, and the evaluate-then-send sequence.
	mu       sync.Mutex
	settings config.NotificationSettings
	registry *Registry

	// lifecycle of the poll goroutine.
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// MonitorOption adjusts monitor construction.
type MonitorOption func(*Monitor)

// WithMonitorClock overrides the time source.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor builds a monitor over source and sender. settings seeds both
// the category flags and the cooldown registry; settingsPath may be empty to
// keep cooldown state in memory only.
func NewMonitor(source DataSource, sender Sender, bus *events.Bus, logger *zap.Logger,
	settings config.NotificationSettings, settingsPath string, opts ...MonitorOption) *Monitor {

	m := &Monitor{
		source:       source,
		sender:       sender,
		bus:          bus,
		logger:       logger,
		settingsPath: settingsPath,
		now:          time.Now,
		settings:     settings,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = NewRegistry(settings.LastNotificationTimes, m.now)
	return m
}

// Start launches the poll loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.bus.Publish(events.Event{Kind: events.KindMonitorState, At: m.now(), Active: true})
	m.logger.Info("notification monitoring started",
		zap.Duration("interval", m.interval()))

	go m.loop(loopCtx, m.done)
}

// Stop cancels the poll loop and waits for it to exit. An in-flight check is
// allowed to finish; only the sleep between cycles is interrupted.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	m.bus.Publish(events.Event{Kind: events.KindMonitorState, At: m.now(), Active: false})
	m.logger.Info("notification monitoring stopped")
}

// Running reports whether the poll loop is active.
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	// First check runs immediately so a restart does not wait a full
	// interval to notice an empty gas cylinder.
	m.safeCheck(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval()):
		}
		if ctx.Err() != nil {
			return
		}
		m.safeCheck(ctx)
	}
}

// safeCheck shields the poll loop from a panicking cycle. One bad cycle is
// logged and skipped; the schedule continues.
func (m *Monitor) safeCheck(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("check cycle panicked", zap.Any("panic", r))
		}
	}()
	if err := m.RunChecks(ctx); err != nil {
		m.logger.Warn("check cycle failed", zap.Error(err))
	}
}

func (m *Monitor) interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	minutes := m.settings.CheckIntervalMinutes
	if minutes <= 0 {
		minutes = config.DefaultNotificationSettings().CheckIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// UpdateSettings applies externally edited settings: category flags and the
// interval are replaced, persisted cooldown timestamps are merged (the later
// timestamp wins) so an in-memory attempt is never forgotten.
func (m *Monitor) UpdateSettings(s config.NotificationSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	times := s.LastNotificationTimes
	s.LastNotificationTimes = nil
	m.settings = s
	m.registry.Merge(times)
	m.logger.Info("notification settings reloaded",
		zap.Int("check_interval_minutes", s.CheckIntervalMinutes))
}

// RunChecks evaluates every enabled category against a fresh snapshot and
// dispatches what the cooldown registry lets through. Also used by the poll
// loop and the one-shot CLI check.
func (m *Monitor) RunChecks(ctx context.Context) error {
	snap, err := m.source.Snapshot(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []Candidate
	if m.settings.LowStockEnabled {
		candidates = append(candidates, LowStock(snap.Inventory)...)
	}
	if m.settings.CleaningRemindersEnabled {
		candidates = append(candidates, CleaningDue(snap.CleaningTasks, m.now())...)
	}
	if m.settings.PackingMaterialsEnabled {
		candidates = append(candidates, PackingLow(snap.PackingMaterials)...)
	}
	if m.settings.GasLevelWarningsEnabled {
		candidates = append(candidates, GasLevel(snap.GasCylinders)...)
	}

	m.dispatchLocked(ctx, candidates)
	return nil
}

// OnInventoryUpdated re-checks low stock immediately, optionally narrowed to
// one item. The poll interval is bypassed, the cooldown is not.
func (m *Monitor) OnInventoryUpdated(ctx context.Context, item string) error {
	return m.triggerCategory(ctx, func(snap store.Snapshot) []Candidate {
		candidates := LowStock(snap.Inventory)
		if item == "" {
			return candidates
		}
		key := LowStockKey(item)
		var out []Candidate
		for _, c := range candidates {
			if c.Key == key {
				out = append(out, c)
			}
		}
		return out
	}, m.lowStockEnabled)
}

// OnCleaningTaskUpdated re-checks cleaning reminders immediately.
func (m *Monitor) OnCleaningTaskUpdated(ctx context.Context) error {
	return m.triggerCategory(ctx, func(snap store.Snapshot) []Candidate {
		return CleaningDue(snap.CleaningTasks, m.now())
	}, m.cleaningEnabled)
}

// OnPackingMaterialUpdated re-checks packing materials immediately.
func (m *Monitor) OnPackingMaterialUpdated(ctx context.Context) error {
	return m.triggerCategory(ctx, func(snap store.Snapshot) []Candidate {
		return PackingLow(snap.PackingMaterials)
	}, m.packingEnabled)
}

// OnGasUpdated re-checks the gas level immediately.
func (m *Monitor) OnGasUpdated(ctx context.Context) error {
	return m.triggerCategory(ctx, func(snap store.Snapshot) []Candidate {
		return GasLevel(snap.GasCylinders)
	}, m.gasEnabled)
}

func (m *Monitor) lowStockEnabled() bool { return m.settings.LowStockEnabled }
func (m *Monitor) cleaningEnabled() bool { return m.settings.CleaningRemindersEnabled }
func (m *Monitor) packingEnabled() bool  { return m.settings.PackingMaterialsEnabled }
func (m *Monitor) gasEnabled() bool      { return m.settings.GasLevelWarningsEnabled }

func (m *Monitor) triggerCategory(ctx context.Context, eval func(store.Snapshot) []Candidate, enabled func() bool) error {
	snap, err := m.source.Snapshot(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !enabled() {
		return nil
	}
	m.dispatchLocked(ctx, eval(snap))
	return nil
}

// dispatchLocked sends each cooldown-ready candidate. Every attempt consumes
// the cooldown except when the dispatcher reports the connection itself is
// unavailable, so a flaky session is not hammered but a recovered one does
// not replay hours of stale alerts.
func (m *Monitor) dispatchLocked(ctx context.Context, candidates []Candidate) {
	attempted := false
	for _, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		if !m.registry.Ready(c.Key, c.Cooldown) {
			m.logger.Debug("notification in cooldown", zap.String("key", c.Key))
			continue
		}

		_, err := m.sender.Send(ctx, c.Text)
		switch {
		case err == nil:
			m.registry.MarkAttempt(c.Key)
			attempted = true
			m.logger.Info("notification sent", zap.String("key", c.Key))
		case errors.Is(err, dispatch.ErrConnectionUnavailable):
			m.logger.Warn("browser unavailable, notification deferred",
				zap.String("key", c.Key))
		default:
			m.registry.MarkAttempt(c.Key)
			attempted = true
			m.logger.Warn("notification attempt failed",
				zap.String("key", c.Key), zap.Error(err))
		}
	}
	if attempted {
		m.persistLocked()
	}
}

// persistLocked writes the cooldown registry back through the settings file.
func (m *Monitor) persistLocked() {
	if m.settingsPath == "" {
		return
	}
	saved := m.settings
	saved.LastNotificationTimes = m.registry.Snapshot()
	if err := config.SaveNotificationSettings(m.settingsPath, saved); err != nil {
		m.logger.Warn("persist cooldown registry failed", zap.Error(err))
	}
}
