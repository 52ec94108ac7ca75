package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenwatch/internal/store"
)

func TestLowStockAboveReorderLevel(t *testing.T) {
	got := LowStock([]store.InventoryItem{
		{Name: "Basmati Rice", Purchased: 100, Used: 50, ReorderLevel: 20, Unit: "kg"},
	})
	assert.Empty(t, got)
}

func TestLowStockAtOrBelowReorderLevel(t *testing.T) {
	got := LowStock([]store.InventoryItem{
		{Name: "Basmati Rice", Purchased: 100, Used: 95, ReorderLevel: 20, Unit: "kg"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "low_stock_basmati_rice", got[0].Key)
	assert.Equal(t, CooldownLowStock, got[0].Cooldown)
	assert.Contains(t, got[0].Text, "LOW STOCK")
	assert.NotContains(t, got[0].Text, "OUT OF STOCK")
	assert.Contains(t, got[0].Text, "5 kg")
}

func TestLowStockNegativeQuantityIsOutOfStock(t *testing.T) {
	got := LowStock([]store.InventoryItem{
		{Name: "Basmati Rice", Purchased: 10, Used: 12, ReorderLevel: 5, Unit: "kg"},
	})
	require.Len(t, got, 1)
	// Same key as the low-stock case: one window per item, not per severity.
	assert.Equal(t, "low_stock_basmati_rice", got[0].Key)
	assert.Contains(t, got[0].Text, "OUT OF STOCK")
}

func TestCleaningDueSingleTask(t *testing.T) {
	today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	got := CleaningDue([]store.CleaningTask{
		{Name: "Deep clean fryer", Location: "Kitchen", AssignedTo: "Ravi", NextDue: today},
		{Name: "Descale boiler", NextDue: today.AddDate(0, 0, 5)},
	}, today)
	require.Len(t, got, 1)
	assert.Equal(t, KeyCleaningToday, got[0].Key)
	assert.Contains(t, got[0].Text, "Deep clean fryer")
	assert.NotContains(t, got[0].Text, "Descale boiler")
	assert.Contains(t, got[0].Text, "assigned to Ravi")
}

func TestCleaningDueBatchesIntoOneDigest(t *testing.T) {
	today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	got := CleaningDue([]store.CleaningTask{
		{Name: "Deep clean fryer", NextDue: today},
		{Name: "Mop cold room", NextDue: today.AddDate(0, 0, -2)}, // overdue counts
	}, today)
	require.Len(t, got, 1, "multiple due tasks must batch into one message")
	assert.Contains(t, got[0].Text, "Deep clean fryer")
	assert.Contains(t, got[0].Text, "Mop cold room")
	assert.Contains(t, got[0].Text, "2 tasks")
}

func TestCleaningDueLaterToday(t *testing.T) {
	morning := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	got := CleaningDue([]store.CleaningTask{
		{Name: "Close-down clean", NextDue: morning.Add(12 * time.Hour)},
	}, morning)
	assert.Len(t, got, 1, "a task due later the same day is due today")
}

func TestCleaningDueZeroDateSkipped(t *testing.T) {
	got := CleaningDue([]store.CleaningTask{{Name: "Unscheduled"}}, time.Now())
	assert.Empty(t, got)
}

func TestPackingLow(t *testing.T) {
	got := PackingLow([]store.PackingMaterial{
		{Name: "Foil Containers", CurrentStock: 40, MinimumStock: 50, Unit: "pcs"},
		{Name: "Carrier Bags", CurrentStock: 500, MinimumStock: 100},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "packing_material_foil_containers", got[0].Key)
	assert.Equal(t, CooldownPacking, got[0].Cooldown)
}

func TestGasLevelClassification(t *testing.T) {
	cases := []struct {
		days     float64
		wantKey  string
		wantCool time.Duration
	}{
		{1, "gas_critical", CooldownGasCritical},
		{0.5, "gas_critical", CooldownGasCritical},
		{2, "gas_warning", CooldownGasWarning},
		{3, "gas_warning", CooldownGasWarning},
		{10, "", 0},
	}
	for _, tc := range cases {
		got := GasLevel([]store.GasCylinder{
			{CylinderID: "CYL-1", Status: "Active", DaysRemaining: tc.days, UpdatedAt: time.Now()},
		})
		if tc.wantKey == "" {
			assert.Empty(t, got, "days=%v", tc.days)
			continue
		}
		require.Len(t, got, 1, "days=%v", tc.days)
		assert.Equal(t, tc.wantKey, got[0].Key)
		assert.Equal(t, tc.wantCool, got[0].Cooldown)
	}
}

func TestGasLevelUsesMostRecentlyUpdatedActive(t *testing.T) {
	now := time.Now()
	got := GasLevel([]store.GasCylinder{
		{CylinderID: "OLD", Status: "Active", DaysRemaining: 1, UpdatedAt: now.Add(-48 * time.Hour)},
		{CylinderID: "EMPTY", Status: "Empty", DaysRemaining: 0, UpdatedAt: now},
		{CylinderID: "NEW", Status: "Active", DaysRemaining: 10, UpdatedAt: now.Add(-time.Hour)},
	})
	// The freshest active cylinder has plenty left, so no alert even though
	// an older record looks critical.
	assert.Empty(t, got)
}

func TestGasLevelNoActiveCylinder(t *testing.T) {
	got := GasLevel([]store.GasCylinder{
		{CylinderID: "CYL-1", Status: "Empty", DaysRemaining: 0},
	})
	assert.Empty(t, got)
}

func TestKeyFragmentsNormalizeNames(t *testing.T) {
	assert.Equal(t, "low_stock_red_chilli_powder", LowStockKey("  Red  Chilli Powder "))
	assert.Equal(t, "packing_material_8oz_cups", PackingKey("8oz Cups"))
}

func TestCandidateTextsSurviveSanitization(t *testing.T) {
	// Alert headers are built from glyphs the sanitizer knows how to keep
	// meaningful; none should sanitize away to nothing.
	today := time.Now()
	all := [][]Candidate{
		LowStock([]store.InventoryItem{{Name: "Rice", Purchased: 1, Used: 1, ReorderLevel: 1}}),
		CleaningDue([]store.CleaningTask{{Name: "Mop", NextDue: today}}, today),
		PackingLow([]store.PackingMaterial{{Name: "Bags", CurrentStock: 0, MinimumStock: 1}}),
		GasLevel([]store.GasCylinder{{CylinderID: "C", Status: "Active", DaysRemaining: 1, UpdatedAt: today}}),
	}
	for _, cands := range all {
		for _, c := range cands {
			assert.NotEmpty(t, strings.TrimSpace(c.Text))
		}
	}
}
