package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistryReadyUnknownKey(t *testing.T) {
	r := NewRegistry(nil, nil)
	assert.True(t, r.Ready("low_stock_rice", CooldownLowStock))
}

func TestRegistryCooldownWindow(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	r := NewRegistry(nil, clock)

	r.MarkAttempt("gas_critical")
	assert.False(t, r.Ready("gas_critical", CooldownGasCritical))

	now = now.Add(CooldownGasCritical - time.Minute)
	assert.False(t, r.Ready("gas_critical", CooldownGasCritical))

	now = now.Add(2 * time.Minute)
	assert.True(t, r.Ready("gas_critical", CooldownGasCritical))
}

func TestRegistrySeededFromPersistedState(t *testing.T) {
	now := time.Now()
	seed := map[string]time.Time{"low_stock_rice": now.Add(-time.Hour)}
	r := NewRegistry(seed, func() time.Time { return now })

	assert.False(t, r.Ready("low_stock_rice", CooldownLowStock))

	// The registry copies the seed.
	seed["low_stock_rice"] = now.Add(-24 * time.Hour)
	assert.False(t, r.Ready("low_stock_rice", CooldownLowStock))
}

func TestRegistryMergeKeepsLaterTimestamp(t *testing.T) {
	now := time.Now()
	r := NewRegistry(map[string]time.Time{
		"a": now.Add(-time.Hour),
		"b": now.Add(-time.Hour),
	}, func() time.Time { return now })

	r.Merge(map[string]time.Time{
		"a": now.Add(-10 * time.Hour), // older, ignored
		"b": now.Add(-time.Minute),    // newer, wins
		"c": now.Add(-time.Minute),    // new key
	})

	snap := r.Snapshot()
	assert.Equal(t, now.Add(-time.Hour), snap["a"])
	assert.Equal(t, now.Add(-time.Minute), snap["b"])
	assert.Equal(t, now.Add(-time.Minute), snap["c"])
}
