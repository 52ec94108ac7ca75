package chrome

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// serveTabList stands in for a Chrome /json/list endpoint and returns the
// port it listens on.
func serveTabList(t *testing.T, tabs []tabInfo) int {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/json/list", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(tabs))
	}))
	t.Cleanup(ts.Close)

	_, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func noProcesses() ([]ProcessInfo, error) { return nil, nil }

func TestFindSessionsClassifiesTabs(t *testing.T) {
	port := serveTabList(t, []tabInfo{
		{ID: "t1", Type: "page", Title: "WhatsApp", URL: "https://web.whatsapp.com/", WebSocketDebuggerURL: "ws://127.0.0.1/devtools/page/t1"},
		{ID: "t2", Type: "page", Title: "WhatsApp Web - Scan QR code", URL: "https://web.whatsapp.com/"},
		{ID: "t3", Type: "page", Title: "News", URL: "https://example.com/"},
		{ID: "t4", Type: "service_worker", Title: "WhatsApp", URL: "https://web.whatsapp.com/sw.js"},
	})

	l := NewLocator(zap.NewNop(), WithPorts(port), WithProcessLister(noProcesses))
	sessions := l.FindSessions(context.Background())

	require.Len(t, sessions, 2)
	byID := map[string]SessionDescriptor{}
	for _, s := range sessions {
		byID[s.TabID] = s
	}
	assert.Equal(t, StatusAuthenticated, byID["t1"].Auth)
	assert.Equal(t, port, byID["t1"].DebugPort)
	assert.NotEmpty(t, byID["t1"].WebSocketURL)
	assert.Equal(t, StatusNeedsAuth, byID["t2"].Auth)
}

func TestFindSessionsUnreachablePortIsEmpty(t *testing.T) {
	// Grab a port that is definitely closed.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	lis.Close()

	l := NewLocator(zap.NewNop(), WithPorts(port), WithProcessLister(noProcesses))
	assert.Empty(t, l.FindSessions(context.Background()))
}

func TestFindSessionsNeedsDebugMode(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	lis.Close()

	l := NewLocator(zap.NewNop(), WithPorts(port), WithProcessLister(func() ([]ProcessInfo, error) {
		return []ProcessInfo{{PID: 4242, Name: "chrome", Args: []string{"chrome"}}}, nil
	}))

	sessions := l.FindSessions(context.Background())
	require.Len(t, sessions, 1)
	assert.Equal(t, StatusNeedsDebugMode, sessions[0].Auth)
}

func TestFindSessionsUsesPortFromProcessArgs(t *testing.T) {
	port := serveTabList(t, []tabInfo{
		{ID: "t1", Type: "page", Title: "WhatsApp", URL: "https://web.whatsapp.com/"},
	})

	l := NewLocator(zap.NewNop(),
		WithPorts(), // no conventional ports: discovery must come from args
		WithProcessLister(func() ([]ProcessInfo, error) {
			return []ProcessInfo{{
				PID:  7,
				Name: "google-chrome",
				Args: []string{"google-chrome", "--remote-debugging-port=" + strconv.Itoa(port)},
			}}, nil
		}))

	sessions := l.FindSessions(context.Background())
	require.Len(t, sessions, 1)
	assert.Equal(t, int32(7), sessions[0].PID)
	assert.Equal(t, port, sessions[0].DebugPort)
}

func TestDebugPortFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
		ok   bool
	}{
		{"equals form", []string{"chrome", "--remote-debugging-port=9222"}, 9222, true},
		{"split form", []string{"chrome", "--remote-debugging-port", "9223"}, 9223, true},
		{"absent", []string{"chrome", "--headless"}, 0, false},
		{"garbage value", []string{"--remote-debugging-port=abc"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, ok := debugPortFromArgs(tt.args)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, port)
		})
	}
}

func TestClassifyTitle(t *testing.T) {
	assert.Equal(t, StatusAuthenticated, classifyTitle("WhatsApp"))
	assert.Equal(t, StatusNeedsAuth, classifyTitle("WhatsApp Web - Scan QR code"))
	assert.Equal(t, StatusNeedsAuth, classifyTitle("Loading..."))
	assert.Equal(t, StatusUnknown, classifyTitle(""))
}
