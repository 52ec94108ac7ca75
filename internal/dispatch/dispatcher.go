// Package dispatch composes and sends one message into the resolved target
// conversation. A send is attempted through an ordered chain of strategies
// (send button, Enter, Ctrl+Enter) and each attempt is verified by watching
// the compose box content rather than trusting the UI action to have landed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitchenwatch/internal/browser"
	"kitchenwatch/internal/events"
	"kitchenwatch/internal/sanitize"
	"kitchenwatch/internal/target"
)

var (
	// ErrConnectionUnavailable means there is no live browser session to
	// send through. Callers may retry once connectivity returns; cooldown
	// accounting treats this case specially.
	ErrConnectionUnavailable = errors.New("browser connection unavailable")
	// ErrTargetMissing means the target conversation could not be resolved.
	ErrTargetMissing = errors.New("target conversation not found")
	// ErrComposerMissing means the message input never appeared on the page.
	ErrComposerMissing = errors.New("message compose box not found")
	// ErrUnverified means every send strategy ran but none could be
	// confirmed. The outcome is unknown, not a confirmed failure: the
	// message may have been delivered despite verification losing the race.
	ErrUnverified = errors.New("send could not be verified")
)

// Resolver is the slice of the target resolver the dispatcher needs.
type Resolver interface {
	Resolve(ctx context.Context) (*target.Handle, error)
	Invalidate()
}

// Receipt describes one completed send call.
type Receipt struct {
	ID            string
	RawText       string
	SanitizedText string
	SentAt        time.Time
	// Strategy is the name of the attempt that verified ("send_button",
	// "enter" or "ctrl_enter").
	Strategy string
	// DeliveryConfirmed is set when the sent text was also spotted in the
	// conversation transcript. Best effort; false does not mean undelivered.
	DeliveryConfirmed bool
}

// Dispatcher sends messages into the single fixed destination group.
type Dispatcher struct {
	drv    browser.Driver
	res    Resolver
	bus    *events.Bus
	logger *zap.Logger

	verifyWait time.Duration
	now        func() time.Time
}

// Option adjusts dispatcher behavior, mainly for tests.
type Option func(*Dispatcher)

// WithVerifyWait bounds how long each strategy waits for the compose box to
// clear before the next strategy is tried.
func WithVerifyWait(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.verifyWait = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(dp *Dispatcher) { dp.now = now }
}

// NewDispatcher wires a dispatcher over a connected driver and resolver.
func NewDispatcher(drv browser.Driver, res Resolver, bus *events.Bus, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		drv:        drv,
		res:        res,
		bus:        bus,
		logger:     logger,
		verifyWait: 2 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send sanitizes raw and delivers it to the target conversation, trying the
// send button first and key actions as fallbacks. The returned Receipt is
// only valid when err is nil.
func (d *Dispatcher) Send(ctx context.Context, raw string) (*Receipt, error) {
	if !d.drv.Connected() {
		return nil, ErrConnectionUnavailable
	}

	if _, err := d.res.Resolve(ctx); err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrTargetMissing, err)
		}
		return nil, fmt.Errorf("resolve target: %w", err)
	}

	text := sanitize.Sanitize(raw)
	id := uuid.NewString()

	box, err := d.composeBox(ctx)
	if err != nil {
		d.fail(id, err)
		return nil, err
	}
	if err := box.Clear(); err != nil {
		d.fail(id, err)
		return nil, fmt.Errorf("clear compose box: %w", err)
	}
	if err := box.Input(text); err != nil {
		d.fail(id, err)
		return nil, fmt.Errorf("type message: %w", err)
	}

	strategy, err := d.attemptSend(ctx, box, text)
	if err != nil {
		d.fail(id, err)
		return nil, err
	}

	receipt := &Receipt{
		ID:            id,
		RawText:       raw,
		SanitizedText: text,
		SentAt:        d.now(),
		Strategy:      strategy,
	}
	receipt.DeliveryConfirmed = d.confirmDelivery(ctx, text)

	d.bus.Publish(events.Event{
		Kind:      events.KindMessageSent,
		At:        receipt.SentAt,
		MessageID: id,
		Detail:    strategy,
	})
	d.logger.Info("message sent",
		zap.String("message_id", id),
		zap.String("strategy", strategy),
		zap.Bool("delivery_confirmed", receipt.DeliveryConfirmed))
	return receipt, nil
}

func (d *Dispatcher) composeBox(ctx context.Context) (browser.Element, error) {
	els, err := d.drv.FindElements(ctx, browser.SetMessageBox)
	if err != nil {
		return nil, fmt.Errorf("locate compose box: %w", err)
	}
	if len(els) == 0 {
		// The conversation may have re-rendered under us; a stale target
		// handle is the usual cause.
		d.res.Invalidate()
		return nil, ErrComposerMissing
	}
	return els[0], nil
}

// attemptSend runs the strategy chain and returns the name of the first
// strategy whose effect was observed in the compose box.
func (d *Dispatcher) attemptSend(ctx context.Context, box browser.Element, typed string) (string, error) {
	strategies := []struct {
		name string
		run  func() error
	}{
		{"send_button", func() error { return d.clickSendButton(ctx) }},
		{"enter", func() error { return d.drv.PressKey(ctx, browser.KeyEnter) }},
		{"ctrl_enter", func() error { return d.drv.PressKey(ctx, browser.KeyCtrlEnter) }},
	}

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.run(); err != nil {
			d.logger.Debug("send strategy failed", zap.String("strategy", s.name), zap.Error(err))
			continue
		}
		if d.verifySent(ctx, box, typed) {
			return s.name, nil
		}
		d.logger.Debug("send strategy unverified", zap.String("strategy", s.name))
	}
	return "", ErrUnverified
}

func (d *Dispatcher) clickSendButton(ctx context.Context) error {
	els, err := d.drv.FindElements(ctx, browser.SetSendButton)
	if err != nil {
		return fmt.Errorf("locate send button: %w", err)
	}
	if len(els) == 0 {
		return errors.New("no send button present")
	}
	if err := els[0].Click(); err != nil {
		return els[0].ClickJS()
	}
	return nil
}

// verifySent polls the compose box until its content no longer matches what
// was typed. A read failure counts as success: the client replaces the input
// node after a send, which invalidates our reference.
func (d *Dispatcher) verifySent(ctx context.Context, box browser.Element, typed string) bool {
	deadline := time.Now().Add(d.verifyWait)
	for {
		current, err := box.Text()
		if err != nil {
			return true
		}
		if strings.TrimSpace(current) != strings.TrimSpace(typed) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(150 * time.Millisecond):
		}
	}
}

// confirmDelivery scans the last few rendered transcript messages for the
// sent text's prefix. Absence is logged only; it never changes the Send
// result.
func (d *Dispatcher) confirmDelivery(ctx context.Context, text string) bool {
	els, err := d.drv.FindElements(ctx, browser.SetMessages)
	if err != nil || len(els) == 0 {
		return false
	}
	prefix := transcriptPrefix(text)
	if len(els) > 5 {
		els = els[len(els)-5:]
	}
	for _, el := range els {
		got, err := el.Text()
		if err != nil {
			continue
		}
		if strings.Contains(got, prefix) {
			return true
		}
	}
	d.logger.Debug("sent text not spotted in transcript", zap.String("prefix", prefix))
	return false
}

// transcriptPrefix keeps the comparison short so trailing renderer tweaks
// (timestamps, read ticks) cannot defeat the match.
func transcriptPrefix(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > 30 {
		runes = runes[:30]
	}
	return string(runes)
}

func (d *Dispatcher) fail(id string, err error) {
	d.bus.Publish(events.Event{
		Kind:      events.KindMessageFailed,
		At:        d.now(),
		MessageID: id,
		Detail:    err.Error(),
	})
	d.logger.Warn("message send failed", zap.String("message_id", id), zap.Error(err))
}
