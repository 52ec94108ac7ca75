package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Element is the opaque handle higher layers hold onto a DOM node. The
// controller owns the underlying reference; callers validate staleness
// through Driver.IsAlive rather than by catching errors.
type Element interface {
	// Click performs a trusted input click.
	Click() error
	// ClickJS falls back to element.click() when a trusted click is blocked
	// by an overlay or the element is outside the viewport.
	ClickJS() error
	// Input focuses the element and types text into it.
	Input(text string) error
	// Clear empties a text/contenteditable element.
	Clear() error
	// Text returns the rendered text content.
	Text() (string, error)
	// Visible reports whether the node is rendered and on-page.
	Visible() (bool, error)
}

// targetCreate builds the CDP params for opening a tab at url.
func targetCreate(url string) proto.TargetCreateTarget {
	return proto.TargetCreateTarget{URL: url}
}

// rodElement adapts *rod.Element to Element.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) ClickJS() error {
	_, err := e.el.Eval(`() => this.click()`)
	return err
}

func (e *rodElement) Input(text string) error {
	if err := e.el.Focus(); err != nil {
		return err
	}
	return e.el.Input(text)
}

func (e *rodElement) Clear() error {
	// WhatsApp Web composers are contenteditable divs, so value-clearing via
	// Input("") does not work; wipe the node and fire an input event.
	_, err := e.el.Eval(`() => {
		this.textContent = "";
		this.dispatchEvent(new InputEvent("input", { bubbles: true }));
	}`)
	return err
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Visible() (bool, error) {
	return e.el.Visible()
}
