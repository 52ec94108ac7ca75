// Package sanitize converts arbitrary notification text into a form the
// WhatsApp Web composer renders reliably. The composer's text layer only
// handles Basic Multilingual Plane code points; anything above U+FFFF is
// either dropped by the input event or rendered as tofu.
package sanitize

import (
	"strings"
)

// Fallback is substituted whenever sanitization would otherwise produce an
// empty or whitespace-only message.
const Fallback = "Notification from Kitchen Dashboard"

// replacements maps known symbols used by alert formatting to bracketed text
// equivalents. These are applied before the BMP strip so the intent of a
// glyph survives sanitization.
var replacements = map[rune]string{
	'\U000026A0': "[WARNING]",  // ⚠
	'\U0001F6A8': "[ALERT]",    // 🚨
	'\U0001F534': "[CRITICAL]", // 🔴
	'\U0001F7E1': "[WARNING]",  // 🟡
	'\U0001F7E2': "[OK]",       // 🟢
	'\U00002705': "[OK]",       // ✅
	'\U0000274C': "[X]",        // ❌
	'\U0001F525': "[FIRE]",     // 🔥
	'\U000026FD': "[GAS]",      // ⛽
	'\U0001F9F9': "[CLEANING]", // 🧹
	'\U0001F4E6': "[PACKAGE]",  // 📦
	'\U0001F6D2': "[RESTOCK]",  // 🛒
	'\U0001F4C9': "[LOW]",      // 📉
	'\U0001F4CB': "[LIST]",     // 📋
	'\U0001F552': "[TIME]",     // 🕒
	'\U0000FE0F': "",           // emoji variation selector, dropped
}

// Sanitize maps text to a string containing only BMP code points. It is total:
// it never fails, and for any input the result is non-empty and renderable.
// All outbound message text passes through here exactly once before typing.
func Sanitize(text string) (out string) {
	defer func() {
		if recover() != nil {
			out = Fallback
		}
	}()

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if rep, ok := replacements[r]; ok {
			b.WriteString(rep)
			continue
		}
		if r > 0xFFFF {
			continue
		}
		b.WriteRune(r)
	}

	out = b.String()
	if strings.TrimSpace(out) == "" {
		return Fallback
	}
	return out
}
