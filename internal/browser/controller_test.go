package browser

import (
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"kitchenwatch/internal/events"
)

type staticElement struct {
	text    string
	textErr error
}

func (s *staticElement) Click() error           { return nil }
func (s *staticElement) ClickJS() error         { return nil }
func (s *staticElement) Input(string) error     { return nil }
func (s *staticElement) Clear() error           { return nil }
func (s *staticElement) Text() (string, error)  { return s.text, s.textErr }
func (s *staticElement) Visible() (bool, error) { return true, nil }

func TestMarkStaleDropsSession(t *testing.T) {
	c := New(DefaultConfig(), nil, nil, events.New(), zap.NewNop())
	c.state = StateConnected
	c.browser = &rod.Browser{}

	c.markStale()

	assert.Equal(t, StateStale, c.State())
	assert.False(t, c.Connected())
	assert.Nil(t, c.browser)
}

func TestFirstBadgeCount(t *testing.T) {
	cases := []struct {
		name   string
		els    []Element
		want   int
		wantOK bool
	}{
		{"plain number", []Element{&staticElement{text: "3"}}, 3, true},
		{"whitespace", []Element{&staticElement{text: " 12 \n"}}, 12, true},
		{"skips non-numeric", []Element{
			&staticElement{text: "99+"},
			&staticElement{text: "7"},
		}, 7, true},
		{"skips read errors", []Element{
			&staticElement{textErr: assert.AnError},
			&staticElement{text: "2"},
		}, 2, true},
		{"no badge", nil, 0, false},
		{"all non-numeric", []Element{&staticElement{text: "new"}}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, ok := firstBadgeCount(tc.els)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, n)
		})
	}
}

func TestIsAliveNilElement(t *testing.T) {
	c := New(DefaultConfig(), nil, nil, events.New(), zap.NewNop())
	assert.False(t, c.IsAlive(nil))
}
