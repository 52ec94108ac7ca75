// Package target resolves the one fixed destination group inside the
// session's chat list and caches the handle. The group name is known in
// advance, so resolution favors precision and early termination over
// enumerating contacts.
package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"kitchenwatch/internal/browser"
	"kitchenwatch/internal/events"
)

// ErrNotFound means no search term surfaced the target group. Callers must
// not retry unboundedly; whether to surface the miss is their decision.
var ErrNotFound = errors.New("target group not found in chat list")

// DefaultTTL bounds how long a resolved handle is trusted without
// re-verification.
const DefaultTTL = 5 * time.Minute

// Handle is the cached reference to the target conversation. Exactly one
// handle exists at a time.
type Handle struct {
	Name         string
	Element      browser.Element
	DiscoveredAt time.Time
}

// Resolver finds and caches the target group.
type Resolver struct {
	drv        browser.Driver
	bus        *events.Bus
	logger     *zap.Logger
	groupName  string
	ttl        time.Duration
	resultWait time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cached *Handle
	sf     singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithClock injects a clock for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithResultWait overrides how long one search term waits for results.
func WithResultWait(d time.Duration) Option {
	return func(r *Resolver) { r.resultWait = d }
}

// NewResolver builds a resolver for the named group.
func NewResolver(drv browser.Driver, groupName string, bus *events.Bus, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		drv:       drv,
		bus:       bus,
		logger:    logger,
		groupName:  groupName,
		ttl:        DefaultTTL,
		resultWait: 2 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the target group handle, from cache when possible. The
// fast path needs no search at all; a cache miss runs one chat-list search
// regardless of how many callers arrive concurrently.
func (r *Resolver) Resolve(ctx context.Context) (*Handle, error) {
	if h := r.cachedHandle(); h != nil {
		return h, nil
	}

	v, err, _ := r.sf.Do("resolve", func() (interface{}, error) {
		// A concurrent caller may have populated the cache while this call
		// waited on the flight group.
		if h := r.cachedHandle(); h != nil {
			return h, nil
		}
		return r.search(ctx)
	})
	if err != nil {
		r.bus.Publish(events.Event{Kind: events.KindTargetResolved, Target: r.groupName, Found: false})
		return nil, err
	}
	return v.(*Handle), nil
}

// cachedHandle returns the cached handle when it is inside the TTL and its
// element still passes the liveness probe; otherwise the entry is cleared.
func (r *Resolver) cachedHandle() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return nil
	}
	if r.now().Sub(r.cached.DiscoveredAt) > r.ttl {
		r.logger.Debug("target cache expired")
		r.cached = nil
		return nil
	}
	if !r.drv.IsAlive(r.cached.Element) {
		r.logger.Debug("cached target element stale")
		r.cached = nil
		return nil
	}
	return r.cached
}

// Invalidate clears the cache, forcing the next Resolve to search.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// searchTerms yields progressively less specific queries: the full group
// name, then shrinking word prefixes.
func (r *Resolver) searchTerms() []string {
	terms := []string{r.groupName}
	words := strings.Fields(r.groupName)
	for n := len(words) - 1; n >= 1; n-- {
		term := strings.Join(words[:n], " ")
		if term != terms[len(terms)-1] {
			terms = append(terms, term)
		}
	}
	return terms
}

// search types each term into the chat search box and scans the results.
// Processing stops at the first term that yields any results, matching or
// not, which bounds worst-case latency against the unbounded result space.
func (r *Resolver) search(ctx context.Context) (*Handle, error) {
	boxes, err := r.drv.FindElements(ctx, browser.SetSearchBox)
	if err != nil {
		return nil, fmt.Errorf("locate search box: %w", err)
	}
	if len(boxes) == 0 {
		return nil, ErrNotFound
	}
	box := boxes[0]

	for _, term := range r.searchTerms() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := box.Clear(); err != nil {
			return nil, fmt.Errorf("clear search box: %w", err)
		}
		if err := box.Input(term); err != nil {
			return nil, fmt.Errorf("type search term: %w", err)
		}

		results := r.awaitResults(ctx)
		if len(results) == 0 {
			continue
		}

		match := r.pickMatch(results)
		if match == nil {
			// Results appeared but none is the target: stop narrowing.
			break
		}

		if err := r.openConversation(match); err != nil {
			return nil, err
		}
		_ = box.Clear()

		handle := &Handle{
			Name:         r.groupName,
			Element:      match,
			DiscoveredAt: r.now(),
		}
		r.mu.Lock()
		r.cached = handle
		r.mu.Unlock()

		r.bus.Publish(events.Event{Kind: events.KindTargetResolved, Target: r.groupName, Found: true})
		r.logger.Info("target group resolved", zap.String("term", term))
		return handle, nil
	}

	_ = box.Clear()
	return nil, ErrNotFound
}

// awaitResults polls briefly for search results to render.
func (r *Resolver) awaitResults(ctx context.Context) []browser.Element {
	deadline := time.Now().Add(r.resultWait)
	for {
		els, err := r.drv.FindElements(ctx, browser.SetSearchResults)
		if err == nil && len(els) > 0 {
			return els
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// pickMatch prefers an exact case-insensitive name match, then the first
// substring match.
func (r *Resolver) pickMatch(results []browser.Element) browser.Element {
	want := strings.ToLower(r.groupName)
	var substring browser.Element
	for _, el := range results {
		text, err := el.Text()
		if err != nil {
			continue
		}
		got := strings.ToLower(strings.TrimSpace(text))
		if got == want {
			return el
		}
		if substring == nil && strings.Contains(got, want) {
			substring = el
		}
	}
	return substring
}

// openConversation clicks the matched row, falling back to a programmatic
// click when the trusted click fails.
func (r *Resolver) openConversation(el browser.Element) error {
	if err := el.Click(); err != nil {
		r.logger.Debug("direct click failed, trying programmatic click", zap.Error(err))
		if err := el.ClickJS(); err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
	}
	return nil
}
