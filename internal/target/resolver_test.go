package target

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenwatch/internal/browser"
	"kitchenwatch/internal/events"
)

// fakeElement implements browser.Element in memory.
type fakeElement struct {
	text     string
	alive    bool
	clickErr error
	clicks   int
	jsClicks int
	inputs   []string
	clears   int
}

func (f *fakeElement) Click() error {
	f.clicks++
	return f.clickErr
}

func (f *fakeElement) ClickJS() error {
	f.jsClicks++
	return nil
}

func (f *fakeElement) Input(text string) error {
	f.inputs = append(f.inputs, text)
	return nil
}

func (f *fakeElement) Clear() error {
	f.clears++
	return nil
}

func (f *fakeElement) Text() (string, error) { return f.text, nil }

func (f *fakeElement) Visible() (bool, error) { return f.alive, nil }

// fakeDriver serves a search box and term-dependent results.
type fakeDriver struct {
	mu      sync.Mutex
	box     *fakeElement
	results func(term string) []browser.Element
}

func newFakeDriver(results func(term string) []browser.Element) *fakeDriver {
	return &fakeDriver{
		box:     &fakeElement{alive: true},
		results: results,
	}
}

func (d *fakeDriver) Connected() bool { return true }

func (d *fakeDriver) FindElements(_ context.Context, set string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch set {
	case browser.SetSearchBox:
		return []browser.Element{d.box}, nil
	case browser.SetSearchResults:
		if len(d.box.inputs) == 0 {
			return nil, nil
		}
		term := d.box.inputs[len(d.box.inputs)-1]
		return d.results(term), nil
	}
	return nil, nil
}

func (d *fakeDriver) IsAlive(el browser.Element) bool {
	fe, ok := el.(*fakeElement)
	return ok && fe.alive
}

func (d *fakeDriver) PressKey(context.Context, string) error { return nil }

func newTestResolver(drv browser.Driver, opts ...Option) *Resolver {
	opts = append([]Option{WithResultWait(50 * time.Millisecond)}, opts...)
	return NewResolver(drv, "Abiram's Kitchen", events.New(), zap.NewNop(), opts...)
}

func TestResolveFindsExactMatch(t *testing.T) {
	group := &fakeElement{text: "Abiram's Kitchen", alive: true}
	drv := newFakeDriver(func(term string) []browser.Element {
		return []browser.Element{
			&fakeElement{text: "Abiram's Kitchen Suppliers", alive: true},
			group,
		}
	})

	r := newTestResolver(drv)
	h, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Same(t, group, h.Element)
	assert.Equal(t, 1, group.clicks)
	assert.GreaterOrEqual(t, drv.box.clears, 2) // pre-search clear + post-click clear
}

func TestResolveSubstringFallback(t *testing.T) {
	row := &fakeElement{text: "Abiram's Kitchen (Main)", alive: true}
	drv := newFakeDriver(func(string) []browser.Element {
		return []browser.Element{row}
	})

	h, err := newTestResolver(drv).Resolve(context.Background())
	require.NoError(t, err)
	assert.Same(t, row, h.Element)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	group := &fakeElement{text: "Abiram's Kitchen", alive: true}
	drv := newFakeDriver(func(string) []browser.Element {
		return []browser.Element{group}
	})

	r := newTestResolver(drv)
	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	inputsAfterFirst := len(drv.box.inputs)

	// Second resolve within the TTL: no further search typing.
	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inputsAfterFirst, len(drv.box.inputs))
}

func TestResolveExpiredTTLSearchesAgain(t *testing.T) {
	group := &fakeElement{text: "Abiram's Kitchen", alive: true}
	drv := newFakeDriver(func(string) []browser.Element {
		return []browser.Element{group}
	})

	now := time.Now()
	r := newTestResolver(drv,
		WithTTL(5*time.Minute),
		WithClock(func() time.Time { return now }))

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	inputsAfterFirst := len(drv.box.inputs)

	now = now.Add(5*time.Minute + time.Second)
	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Greater(t, len(drv.box.inputs), inputsAfterFirst)
}

func TestResolveStaleElementSearchesAgain(t *testing.T) {
	group := &fakeElement{text: "Abiram's Kitchen", alive: true}
	drv := newFakeDriver(func(string) []browser.Element {
		return []browser.Element{group}
	})

	r := newTestResolver(drv)
	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	group.alive = false
	fresh := &fakeElement{text: "Abiram's Kitchen", alive: true}
	drv.mu.Lock()
	drv.results = func(string) []browser.Element { return []browser.Element{fresh} }
	drv.mu.Unlock()

	h, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Same(t, fresh, h.Element)
}

func TestResolveEarlyTermination(t *testing.T) {
	// First term yields results that do not match: the resolver must stop
	// without trying less specific terms.
	drv := newFakeDriver(func(string) []browser.Element {
		return []browser.Element{&fakeElement{text: "Some Other Group", alive: true}}
	})

	_, err := newTestResolver(drv).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, drv.box.inputs, 1)
}

func TestResolveExhaustsTermsWhenNoResults(t *testing.T) {
	drv := newFakeDriver(func(string) []browser.Element { return nil })

	_, err := newTestResolver(drv).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	// "Abiram's Kitchen" narrows once to "Abiram's".
	assert.Equal(t, []string{"Abiram's Kitchen", "Abiram's"}, drv.box.inputs)
}

func TestResolveClickFallback(t *testing.T) {
	group := &fakeElement{text: "Abiram's Kitchen", alive: true, clickErr: errors.New("intercepted")}
	drv := newFakeDriver(func(string) []browser.Element {
		return []browser.Element{group}
	})

	_, err := newTestResolver(drv).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, group.clicks)
	assert.Equal(t, 1, group.jsClicks)
}

func TestConcurrentResolveRunsOneSearch(t *testing.T) {
	group := &fakeElement{text: "Abiram's Kitchen", alive: true}
	drv := newFakeDriver(func(string) []browser.Element {
		time.Sleep(20 * time.Millisecond) // let callers pile up
		return []browser.Element{group}
	})

	r := newTestResolver(drv)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, drv.box.inputs, 1)
}
