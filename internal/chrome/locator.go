// Package chrome discovers reusable Chrome debugging sessions on the local
// machine. It scans running Chrome processes for an active remote-debugging
// port, probes the conventional port range regardless, and classifies any
// WhatsApp Web tabs it finds by their authentication state.
package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// AuthStatus classifies a discovered tab.
type AuthStatus string

const (
	// StatusAuthenticated means the tab shows a logged-in WhatsApp Web client.
	StatusAuthenticated AuthStatus = "authenticated"
	// StatusNeedsAuth means the client is loaded but waiting on a QR scan.
	StatusNeedsAuth AuthStatus = "needs_auth"
	// StatusNeedsDebugMode means Chrome is running but without remote
	// debugging; the user must relaunch it with a debugging port.
	StatusNeedsDebugMode AuthStatus = "needs_debug_mode"
	// StatusUnknown means the tab state could not be classified.
	StatusUnknown AuthStatus = "unknown"
)

// SessionDescriptor identifies one attachable tab (or, for needs_debug_mode,
// a running Chrome that cannot be attached to). Consumed once at connect
// time; never persisted.
type SessionDescriptor struct {
	PID          int32
	DebugPort    int
	TabID        string
	URL          string
	Title        string
	WebSocketURL string
	Auth         AuthStatus
}

// conventionalPorts are probed even when no process advertises them, since a
// debug-enabled Chrome may have been started by another user or wrapper.
var conventionalPorts = []int{9222, 9223, 9224, 9225}

// chromeNames match the executable names we treat as automation-capable.
var chromeNames = []string{"chrome", "chromium", "google-chrome", "brave", "msedge"}

// tabInfo mirrors the DevTools /json/list entry shape.
type tabInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// ProcessInfo is the slice of OS process state the locator inspects.
type ProcessInfo struct {
	PID  int32
	Name string
	Args []string
}

// Locator enumerates candidate sessions. Zero-config callers use NewLocator;
// the process lister and port list are injectable for tests.
type Locator struct {
	logger       *zap.Logger
	client       *http.Client
	clientDomain string
	ports        []int
	listProcs    func() ([]ProcessInfo, error)
}

// Option configures a Locator.
type Option func(*Locator)

// WithPorts overrides the conventional probe ports.
func WithPorts(ports ...int) Option {
	return func(l *Locator) { l.ports = ports }
}

// WithProcessLister overrides OS process enumeration.
func WithProcessLister(fn func() ([]ProcessInfo, error)) Option {
	return func(l *Locator) { l.listProcs = fn }
}

// WithClientDomain overrides the web client domain tabs are matched against.
func WithClientDomain(domain string) Option {
	return func(l *Locator) { l.clientDomain = domain }
}

// NewLocator builds a locator with a 1s probe timeout.
func NewLocator(logger *zap.Logger, opts ...Option) *Locator {
	l := &Locator{
		logger:       logger,
		client:       &http.Client{Timeout: time.Second},
		clientDomain: "web.whatsapp.com",
		ports:        conventionalPorts,
		listProcs:    listChromeCandidates,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// listChromeCandidates enumerates running processes via gopsutil. Processes
// that vanish mid-scan are skipped.
func listChromeCandidates() ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		args, _ := p.CmdlineSlice()
		infos = append(infos, ProcessInfo{PID: p.Pid, Name: name, Args: args})
	}
	return infos, nil
}

// FindSessions returns every attachable WhatsApp Web tab it can discover.
// Absence of sessions is a normal outcome: the result may be empty but the
// call never fails. When plain Chrome instances are running with no debug
// port anywhere, a single synthetic needs_debug_mode descriptor is returned
// so the caller can prompt a relaunch.
func (l *Locator) FindSessions(ctx context.Context) []SessionDescriptor {
	ports := make(map[int]int32) // port -> pid (0 when probed blind)
	for _, p := range l.ports {
		ports[p] = 0
	}

	chromeRunning := false
	procs, err := l.listProcs()
	if err != nil {
		l.logger.Debug("process enumeration failed", zap.Error(err))
	}
	for _, p := range procs {
		if !isChromeName(p.Name) {
			continue
		}
		chromeRunning = true
		if port, ok := debugPortFromArgs(p.Args); ok {
			ports[port] = p.PID
		}
	}

	var sessions []SessionDescriptor
	reachable := false
	for port, pid := range ports {
		tabs, err := l.listTabs(ctx, port)
		if err != nil {
			// Connection refused or non-200 means no session at this port,
			// not an error.
			continue
		}
		reachable = true
		for _, tab := range tabs {
			if tab.Type != "" && tab.Type != "page" {
				continue
			}
			if !strings.Contains(tab.URL, l.clientDomain) {
				continue
			}
			sessions = append(sessions, SessionDescriptor{
				PID:          pid,
				DebugPort:    port,
				TabID:        tab.ID,
				URL:          tab.URL,
				Title:        tab.Title,
				WebSocketURL: tab.WebSocketDebuggerURL,
				Auth:         classifyTitle(tab.Title),
			})
		}
	}

	if len(sessions) == 0 && chromeRunning && !reachable {
		l.logger.Info("chrome running without remote debugging")
		return []SessionDescriptor{{Auth: StatusNeedsDebugMode}}
	}

	l.logger.Debug("session discovery complete", zap.Int("sessions", len(sessions)))
	return sessions
}

// listTabs queries the DevTools tab-list endpoint on one port.
func (l *Locator) listTabs(ctx context.Context, port int) ([]tabInfo, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/list", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tab list on port %d: status %d", port, resp.StatusCode)
	}
	var tabs []tabInfo
	if err := json.NewDecoder(resp.Body).Decode(&tabs); err != nil {
		return nil, fmt.Errorf("parse tab list: %w", err)
	}
	return tabs, nil
}

func isChromeName(name string) bool {
	lower := strings.ToLower(name)
	for _, candidate := range chromeNames {
		if strings.Contains(lower, candidate) {
			return true
		}
	}
	return false
}

// debugPortFromArgs extracts --remote-debugging-port from a command line.
func debugPortFromArgs(args []string) (int, bool) {
	const flag = "--remote-debugging-port"
	for i, arg := range args {
		if val, ok := strings.CutPrefix(arg, flag+"="); ok {
			if port, err := strconv.Atoi(val); err == nil && port > 0 {
				return port, true
			}
		}
		if arg == flag && i+1 < len(args) {
			if port, err := strconv.Atoi(args[i+1]); err == nil && port > 0 {
				return port, true
			}
		}
	}
	return 0, false
}

// classifyTitle decides auth state from a tab title. WhatsApp Web keeps its
// branding in the title once the chat list is up; the login page titles
// mention the QR flow or show a bare loading state.
func classifyTitle(title string) AuthStatus {
	lower := strings.ToLower(title)
	if strings.Contains(lower, "qr") || strings.Contains(lower, "loading") {
		return StatusNeedsAuth
	}
	if strings.Contains(lower, "whatsapp") {
		return StatusAuthenticated
	}
	if title == "" {
		return StatusUnknown
	}
	return StatusNeedsAuth
}
