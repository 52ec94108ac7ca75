package browser

import (
	"encoding/json"
	"fmt"
	"os"
)

// Selector set names. Callers ask for a set by name and never learn which
// concrete selector matched, which insulates them from WhatsApp Web's
// frequently-changing markup.
const (
	SetChatList      = "chat_list"
	SetSearchBox     = "search_box"
	SetSearchResults = "search_results"
	SetMessageBox    = "message_box"
	SetSendButton    = "send_button"
	SetQRCode        = "qr_code"
	SetMessages      = "messages"
	SetUnreadBadge   = "unread_badge"
)

// Catalog maps a set name to an ordered list of CSS selectors, tried
// first-to-last. It is data, not code: a markup drift is patched by editing
// the overrides file, not by redeploying logic.
type Catalog map[string][]string

// DefaultCatalog returns the built-in selector lists, ordered from the most
// current markup to older fallbacks.
func DefaultCatalog() Catalog {
	return Catalog{
		SetChatList: {
			`div[data-testid="chat-list"]`,
			`#pane-side`,
			`div[aria-label="Chat list"]`,
		},
		SetSearchBox: {
			`div[contenteditable="true"][data-tab="3"]`,
			`div[data-testid="chat-list-search"]`,
			`div[title="Search input textbox"]`,
		},
		SetSearchResults: {
			`div[data-testid="cell-frame-container"]`,
			`#pane-side div[role="listitem"]`,
			`#pane-side span[title]`,
		},
		SetMessageBox: {
			`div[contenteditable="true"][data-tab="10"]`,
			`div[data-testid="conversation-compose-box-input"]`,
			`footer div[contenteditable="true"]`,
		},
		SetSendButton: {
			`button[data-testid="send"]`,
			`button[aria-label="Send"]`,
			`span[data-icon="send"]`,
		},
		SetQRCode: {
			`canvas[aria-label*="Scan"]`,
			`div[data-testid="qrcode"]`,
			`div[data-ref] canvas`,
		},
		SetMessages: {
			`div[data-testid="msg-container"]`,
			`div.message-out span.selectable-text`,
			`div[role="row"] span.selectable-text`,
		},
		SetUnreadBadge: {
			`span[data-testid="icon-unread-count"]`,
			`span[aria-label*="unread"]`,
		},
	}
}

// LoadCatalog reads selector overrides from a JSON file ({"set": [..]}) and
// merges them over the defaults. Sets absent from the file keep their
// defaults; a missing file returns the defaults unchanged.
func LoadCatalog(path string) (Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return catalog, nil
		}
		return catalog, fmt.Errorf("read selector overrides: %w", err)
	}
	var overrides map[string][]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return catalog, fmt.Errorf("parse selector overrides: %w", err)
	}
	for set, selectors := range overrides {
		if len(selectors) > 0 {
			catalog[set] = selectors
		}
	}
	return catalog, nil
}

// Selectors returns the ordered selector list for a set, or nil when the set
// is unknown.
func (c Catalog) Selectors(set string) []string {
	return c[set]
}
