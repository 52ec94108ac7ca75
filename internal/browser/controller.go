// Package browser owns the single automation session against WhatsApp Web.
// It attaches to a discovered debugging session or launches its own Chrome,
// waits for the client to render, and exposes the element primitives the
// target resolver and message dispatcher are built on.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"

	"kitchenwatch/internal/chrome"
	"kitchenwatch/internal/events"
)

// State is the controller lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateAttaching    State = "attaching"
	StateConnected    State = "connected"
	StateStale        State = "stale"
)

// Typed connect failures. Expected failure modes cross the package boundary
// as these values, never as panics.
var (
	// ErrChromeUnavailable means no Chrome/Chromium binary exists on the
	// host. Detected once at startup; the automation subsystem disables
	// itself rather than retrying.
	ErrChromeUnavailable = errors.New("no chrome or chromium binary found on this host")
	// ErrNotConnected means an operation was attempted without a session.
	ErrNotConnected = errors.New("browser not connected")
	// ErrPageNotReady means WhatsApp Web never rendered any known indicator.
	ErrPageNotReady = errors.New("whatsapp web page did not become ready")
	// ErrAuthTimeout means the QR login screen never progressed to a chat list.
	ErrAuthTimeout = errors.New("authentication wait timed out")
)

// Key combos accepted by Driver.PressKey.
const (
	KeyEnter     = "enter"
	KeyCtrlEnter = "ctrl+enter"
)

// Driver is the automation surface the resolver and dispatcher program
// against. Controller is the production implementation; tests use fakes.
type Driver interface {
	Connected() bool
	FindElements(ctx context.Context, set string) ([]Element, error)
	IsAlive(el Element) bool
	PressKey(ctx context.Context, combo string) error
}

// Config holds controller settings.
type Config struct {
	// ClientURL is the web client entry point.
	ClientURL string
	// ReuseSession keeps one persistent profile directory per installation
	// so authentication survives restarts. When false, each connection gets
	// a disposable profile that is deleted on disconnect.
	ReuseSession bool
	// ProfileDir is the persistent profile location (ReuseSession mode).
	ProfileDir string
	// Headless launches Chrome without a window. Login by QR needs a visible
	// window, so this defaults to false.
	Headless bool
	// PageReadyTimeout bounds the wait for any page indicator.
	PageReadyTimeout time.Duration
	// AuthTimeout bounds the wait for QR login to complete.
	AuthTimeout time.Duration
	// AttachAttempts and AttachBackoff govern attach retries; backoff
	// doubles per attempt.
	AttachAttempts int
	AttachBackoff  time.Duration
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		ClientURL:        "https://web.whatsapp.com",
		ReuseSession:     true,
		PageReadyTimeout: 8 * time.Second,
		AuthTimeout:      45 * time.Second,
		AttachAttempts:   3,
		AttachBackoff:    time.Second,
	}
}

// ChromeAvailable reports whether an automatable browser binary exists.
func ChromeAvailable() bool {
	_, has := launcher.LookPath()
	return has
}

// Controller drives one Chrome session. It is not safe for concurrent use
// from multiple call sites; the notification monitor serializes access.
type Controller struct {
	cfg     Config
	logger  *zap.Logger
	locator *chrome.Locator
	catalog Catalog
	bus     *events.Bus

	state      State
	browser    *rod.Browser
	page       *rod.Page
	launcher   *launcher.Launcher
	profileDir string
	disposable bool
}

// New builds a controller. A nil catalog uses the defaults.
func New(cfg Config, locator *chrome.Locator, catalog Catalog, bus *events.Bus, logger *zap.Logger) *Controller {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Controller{
		cfg:     cfg,
		logger:  logger,
		locator: locator,
		catalog: catalog,
		bus:     bus,
		state:   StateDisconnected,
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Connected reports whether a live session exists.
func (c *Controller) Connected() bool {
	return c.state == StateConnected && c.browser != nil
}

// Connect attaches to a preferred or discovered authenticated session, or
// falls back to launching a fresh Chrome profile, then waits for WhatsApp
// Web to render (and, if needed, for QR login).
func (c *Controller) Connect(ctx context.Context, preferred *chrome.SessionDescriptor) error {
	if c.Connected() {
		if _, err := c.browser.Version(); err == nil {
			return nil
		}
		c.logger.Info("stale browser connection, reconnecting")
		c.markStale()
	}

	c.state = StateAttaching

	candidates := c.attachCandidates(ctx, preferred)
	for _, cand := range candidates {
		if err := c.attach(ctx, cand); err != nil {
			c.logger.Warn("attach failed",
				zap.Int("port", cand.DebugPort),
				zap.String("tab", cand.TabID),
				zap.Error(err))
			continue
		}
		return c.finishConnect(ctx)
	}

	if err := c.launch(ctx); err != nil {
		c.state = StateDisconnected
		return err
	}
	return c.finishConnect(ctx)
}

// attachCandidates orders discovered sessions: explicit preference first,
// then authenticated tabs, then tabs still waiting on login.
func (c *Controller) attachCandidates(ctx context.Context, preferred *chrome.SessionDescriptor) []chrome.SessionDescriptor {
	if preferred != nil && preferred.DebugPort > 0 {
		return []chrome.SessionDescriptor{*preferred}
	}
	var authenticated, waiting []chrome.SessionDescriptor
	for _, s := range c.locator.FindSessions(ctx) {
		switch s.Auth {
		case chrome.StatusAuthenticated:
			authenticated = append(authenticated, s)
		case chrome.StatusNeedsAuth:
			waiting = append(waiting, s)
		}
	}
	return append(authenticated, waiting...)
}

// attach connects to an existing session's debug port with bounded retry.
func (c *Controller) attach(ctx context.Context, desc chrome.SessionDescriptor) error {
	backoff := c.cfg.AttachBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.AttachAttempts; attempt++ {
		controlURL, err := launcher.ResolveURL("127.0.0.1:" + strconv.Itoa(desc.DebugPort))
		if err == nil {
			b := rod.New().ControlURL(controlURL).Context(ctx)
			if err = b.Connect(); err == nil {
				c.browser = b
				c.logger.Info("attached to existing session",
					zap.Int("port", desc.DebugPort),
					zap.String("auth", string(desc.Auth)))
				return nil
			}
		}
		lastErr = err
		if attempt < c.cfg.AttachAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("attach to port %d after %d attempts: %w",
		desc.DebugPort, c.cfg.AttachAttempts, lastErr)
}

// launch starts a fresh Chrome with either the persistent or a disposable
// profile directory.
func (c *Controller) launch(ctx context.Context) error {
	if !ChromeAvailable() {
		return ErrChromeUnavailable
	}

	dir := c.cfg.ProfileDir
	disposable := false
	if !c.cfg.ReuseSession || dir == "" {
		tmp, err := os.MkdirTemp("", "kitchenwatch-profile-")
		if err != nil {
			return fmt.Errorf("create disposable profile: %w", err)
		}
		dir = tmp
		disposable = !c.cfg.ReuseSession
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	// Leakless off: the browser must outlive this process so a later run can
	// reattach to the still-authenticated session.
	l := launcher.New().
		UserDataDir(dir).
		Headless(c.cfg.Headless).
		Leakless(false)

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect to launched chrome: %w", err)
	}

	c.browser = b
	c.launcher = l
	c.profileDir = dir
	c.disposable = disposable
	c.logger.Info("launched chrome",
		zap.String("profile", dir),
		zap.Bool("disposable", disposable))
	return nil
}

// finishConnect navigates to the client, waits for render and auth, and
// flips the state machine to Connected.
func (c *Controller) finishConnect(ctx context.Context) error {
	if err := c.ensureClientPage(ctx); err != nil {
		c.failConnect()
		return err
	}

	indicator, err := c.waitPageReady(ctx)
	if err != nil {
		c.diagnose(ctx)
		c.failConnect()
		return err
	}

	if indicator == SetQRCode {
		c.logger.Info("login required, waiting for QR scan",
			zap.Duration("timeout", c.cfg.AuthTimeout))
		if err := c.waitAuthenticated(ctx); err != nil {
			c.failConnect()
			return err
		}
	}

	c.state = StateConnected
	c.bus.Publish(events.Event{Kind: events.KindConnection, Connected: true})
	c.logger.Info("whatsapp web session ready")
	return nil
}

func (c *Controller) failConnect() {
	c.dropSession()
	c.state = StateDisconnected
	c.bus.Publish(events.Event{Kind: events.KindConnection, Connected: false})
}

// ensureClientPage reuses an already-open WhatsApp tab or opens one.
func (c *Controller) ensureClientPage(ctx context.Context) error {
	pages, err := c.browser.Pages()
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.URL, c.cfg.ClientURL) {
			c.page = p.Context(ctx)
			return nil
		}
	}

	page, err := c.browser.Page(targetCreate(c.cfg.ClientURL))
	if err != nil {
		return fmt.Errorf("open client page: %w", err)
	}
	c.page = page.Context(ctx)
	return nil
}

// waitPageReady polls for any known indicator (chat list, QR canvas, or
// composer) and returns the name of the first set that appeared.
func (c *Controller) waitPageReady(ctx context.Context) (string, error) {
	indicators := []string{SetChatList, SetMessageBox, SetQRCode}
	deadline := time.Now().Add(c.cfg.PageReadyTimeout)
	for {
		for _, set := range indicators {
			els, err := c.findElementsNow(set)
			if err == nil && len(els) > 0 {
				return set, nil
			}
		}
		if time.Now().After(deadline) {
			return "", ErrPageNotReady
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// waitAuthenticated polls for a logged-in indicator after a QR screen.
func (c *Controller) waitAuthenticated(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.AuthTimeout)
	for {
		for _, set := range []string{SetChatList, SetMessageBox} {
			els, err := c.findElementsNow(set)
			if err == nil && len(els) > 0 {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return ErrAuthTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// diagnose logs one snapshot of the page when readiness polling fails.
func (c *Controller) diagnose(ctx context.Context) {
	if c.page == nil {
		return
	}
	info, err := c.page.Info()
	if err != nil {
		c.logger.Warn("diagnostics unavailable", zap.Error(err))
		return
	}
	count := -1
	if res, err := c.page.Context(ctx).Eval(`() => document.querySelectorAll("*").length`); err == nil {
		count = res.Value.Int()
	}
	c.logger.Warn("page never became ready",
		zap.String("title", info.Title),
		zap.String("url", info.URL),
		zap.Int("element_count", count))
}

// Disconnect tears down the local session. With preserveSession the browser
// keeps running so a later Connect can reattach; otherwise a browser we
// launched is terminated and a disposable profile is deleted.
func (c *Controller) Disconnect(preserveSession bool) error {
	if !preserveSession {
		if c.browser != nil {
			_ = c.browser.Close()
		}
		if c.launcher != nil {
			c.launcher.Kill()
		}
		if c.disposable && c.profileDir != "" {
			if err := os.RemoveAll(c.profileDir); err != nil {
				c.logger.Warn("remove disposable profile", zap.Error(err))
			}
		}
	}
	c.dropSession()
	c.state = StateDisconnected
	c.bus.Publish(events.Event{Kind: events.KindConnection, Connected: false})
	return nil
}

// markStale records that the attached browser stopped answering. The handle
// is dropped so Connect rebuilds the session from scratch.
func (c *Controller) markStale() {
	c.state = StateStale
	c.dropSession()
}

func (c *Controller) dropSession() {
	c.browser = nil
	c.page = nil
	c.launcher = nil
}

// FindElements tries each selector in the named set in priority order and
// returns the first non-empty result. No match returns an empty slice, not
// an error: absence is an expected outcome the caller branches on.
func (c *Controller) FindElements(ctx context.Context, set string) ([]Element, error) {
	if !c.Connected() || c.page == nil {
		return nil, ErrNotConnected
	}
	page := c.page.Context(ctx)
	for _, selector := range c.catalog.Selectors(set) {
		els, err := page.Elements(selector)
		if err != nil {
			continue
		}
		if len(els) > 0 {
			out := make([]Element, 0, len(els))
			for _, el := range els {
				out = append(out, &rodElement{el: el})
			}
			return out, nil
		}
	}
	return nil, nil
}

func (c *Controller) findElementsNow(set string) ([]Element, error) {
	if c.page == nil {
		return nil, ErrNotConnected
	}
	for _, selector := range c.catalog.Selectors(set) {
		els, err := c.page.Elements(selector)
		if err != nil {
			continue
		}
		if len(els) > 0 {
			out := make([]Element, 0, len(els))
			for _, el := range els {
				out = append(out, &rodElement{el: el})
			}
			return out, nil
		}
	}
	return nil, nil
}

// IsAlive probes a cached element reference. Any failure, including a panic
// from a detached node, reads as false and is never propagated.
func (c *Controller) IsAlive(el Element) (alive bool) {
	defer func() {
		if recover() != nil {
			alive = false
		}
	}()
	if el == nil || !c.Connected() {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// PressKey sends a key action to the focused element.
func (c *Controller) PressKey(ctx context.Context, combo string) error {
	if !c.Connected() || c.page == nil {
		return ErrNotConnected
	}
	kb := c.page.Context(ctx).Keyboard
	switch combo {
	case KeyEnter:
		return kb.Type(input.Enter)
	case KeyCtrlEnter:
		if err := kb.Press(input.ControlLeft); err != nil {
			return err
		}
		if err := kb.Type(input.Enter); err != nil {
			_ = kb.Release(input.ControlLeft)
			return err
		}
		return kb.Release(input.ControlLeft)
	default:
		return fmt.Errorf("unknown key combo %q", combo)
	}
}

// UnreadCount reads the first unread badge in the chat list, best-effort.
// It publishes the count on the bus and returns 0 when no badge is present.
func (c *Controller) UnreadCount(ctx context.Context) (int, error) {
	els, err := c.FindElements(ctx, SetUnreadBadge)
	if err != nil {
		return 0, err
	}
	if n, ok := firstBadgeCount(els); ok {
		c.bus.Publish(events.Event{Kind: events.KindUnreadCount, Unread: n})
		return n, nil
	}
	return 0, nil
}

// firstBadgeCount parses the first badge element carrying a plain number.
// Badges showing "99+" or icons are skipped rather than guessed at.
func firstBadgeCount(els []Element) (int, bool) {
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// ProfileDir returns the profile directory in use, if any.
func (c *Controller) ProfileDir() string {
	return c.profileDir
}
