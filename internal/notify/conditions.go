// Package notify evaluates kitchen-management data against four alert
// conditions and sends the resulting messages through the dispatcher, rate
// limited by a per-key cooldown registry.
package notify

import (
	"fmt"
	"strings"
	"time"

	"kitchenwatch/internal/store"
)

// Cooldown windows per alert category. A key is silenced for its window
// after every send attempt, whether or not the send verified.
const (
	CooldownLowStock    = 4 * time.Hour
	CooldownCleaning    = 8 * time.Hour
	CooldownPacking     = 4 * time.Hour
	CooldownGasCritical = 6 * time.Hour
	CooldownGasWarning  = 12 * time.Hour
)

// KeyCleaningToday is the shared key for the daily cleaning digest.
const KeyCleaningToday = "cleaning_tasks_today"

// Candidate is one alert a condition check wants to send. Whether it is
// actually sent depends on the cooldown registry.
type Candidate struct {
	Key      string
	Text     string
	Cooldown time.Duration
}

// keyFragment normalizes an item or material name into a notification key
// segment.
func keyFragment(name string) string {
	frag := strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(frag), "_")
}

// LowStockKey returns the notification key for an inventory item. Low and
// out-of-stock share the key so an item cannot alert twice in one window.
func LowStockKey(item string) string {
	return "low_stock_" + keyFragment(item)
}

// PackingKey returns the notification key for a packing material.
func PackingKey(material string) string {
	return "packing_material_" + keyFragment(material)
}

// LowStock yields one candidate per inventory item at or below its reorder
// level. Items with nothing left get the harsher out-of-stock wording under
// the same key.
func LowStock(items []store.InventoryItem) []Candidate {
	var out []Candidate
	for _, item := range items {
		current := item.Current()
		if current > item.ReorderLevel {
			continue
		}
		unit := item.Unit
		if unit == "" {
			unit = "units"
		}
		var text string
		if current <= 0 {
			text = fmt.Sprintf(
				"\U0001F6A8 OUT OF STOCK\n\n%s has run out.\n\nPlease restock immediately.",
				item.Name)
		} else {
			text = fmt.Sprintf(
				"⚠️ LOW STOCK ALERT\n\n%s: %s %s remaining (reorder at %s)\n\nPlease restock soon.",
				item.Name, trimQty(current), unit, trimQty(item.ReorderLevel))
		}
		out = append(out, Candidate{
			Key:      LowStockKey(item.Name),
			Text:     text,
			Cooldown: CooldownLowStock,
		})
	}
	return out
}

// CleaningDue batches every task due on or before today into a single
// candidate. One task reads as a reminder, several as an itemized digest.
func CleaningDue(tasks []store.CleaningTask, today time.Time) []Candidate {
	cutoff := endOfDay(today)
	var due []store.CleaningTask
	for _, task := range tasks {
		if task.NextDue.IsZero() || task.NextDue.After(cutoff) {
			continue
		}
		due = append(due, task)
	}
	if len(due) == 0 {
		return nil
	}

	var text string
	if len(due) == 1 {
		task := due[0]
		text = fmt.Sprintf(
			"\U0001F9F9 CLEANING REMINDER\n\n%s is due today%s.",
			task.Name, taskDetail(task))
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "\U0001F9F9 CLEANING REMINDERS\n\n%d tasks are due today:\n", len(due))
		for _, task := range due {
			fmt.Fprintf(&b, "\n- %s%s", task.Name, taskDetail(task))
		}
		text = b.String()
	}
	return []Candidate{{
		Key:      KeyCleaningToday,
		Text:     text,
		Cooldown: CooldownCleaning,
	}}
}

func taskDetail(task store.CleaningTask) string {
	var parts []string
	if task.Location != "" {
		parts = append(parts, task.Location)
	}
	if task.AssignedTo != "" {
		parts = append(parts, "assigned to "+task.AssignedTo)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// PackingLow yields one candidate per material at or below its minimum stock.
func PackingLow(materials []store.PackingMaterial) []Candidate {
	var out []Candidate
	for _, m := range materials {
		if m.CurrentStock > m.MinimumStock {
			continue
		}
		unit := m.Unit
		if unit == "" {
			unit = "units"
		}
		out = append(out, Candidate{
			Key: PackingKey(m.Name),
			Text: fmt.Sprintf(
				"\U0001F4E6 PACKING MATERIALS LOW\n\n%s: %s %s left (minimum %s)\n\nPlease reorder.",
				m.Name, trimQty(m.CurrentStock), unit, trimQty(m.MinimumStock)),
			Cooldown: CooldownPacking,
		})
	}
	return out
}

// GasLevel checks the most recently updated active cylinder. One day or less
// of gas is critical, up to three days is a warning, anything above is fine.
func GasLevel(cylinders []store.GasCylinder) []Candidate {
	var active *store.GasCylinder
	for i := range cylinders {
		c := &cylinders[i]
		if !strings.EqualFold(c.Status, "Active") {
			continue
		}
		if active == nil || c.UpdatedAt.After(active.UpdatedAt) {
			active = c
		}
	}
	if active == nil {
		return nil
	}

	switch {
	case active.DaysRemaining <= 1:
		return []Candidate{{
			Key: "gas_critical",
			Text: fmt.Sprintf(
				"\U0001F6A8 GAS CRITICAL\n\nCylinder %s has about %s day(s) of gas left.\n\nArrange a replacement now.",
				active.CylinderID, trimQty(active.DaysRemaining)),
			Cooldown: CooldownGasCritical,
		}}
	case active.DaysRemaining <= 3:
		return []Candidate{{
			Key: "gas_warning",
			Text: fmt.Sprintf(
				"⚠️ GAS LEVEL WARNING\n\nCylinder %s has about %s days of gas left.\n\nPlan a replacement.",
				active.CylinderID, trimQty(active.DaysRemaining)),
			Cooldown: CooldownGasWarning,
		}}
	}
	return nil
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

// trimQty renders quantities without a spurious ".0" on whole numbers.
func trimQty(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}
