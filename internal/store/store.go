// Package store reads the kitchen-management tables the notification monitor
// evaluates. The surrounding application owns the writes; kitchenwatch treats
// the database as a read-mostly snapshot source. Upsert helpers exist so the
// host (and tests) can feed rows through the same code path.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// InventoryItem is one row of the inventory table.
type InventoryItem struct {
	Name         string
	Purchased    float64
	Used         float64
	ReorderLevel float64
	Unit         string
}

// Current returns the on-hand quantity.
func (i InventoryItem) Current() float64 {
	return i.Purchased - i.Used
}

// CleaningTask is one row of the cleaning_maintenance table.
type CleaningTask struct {
	Name       string
	AssignedTo string
	Location   string
	NextDue    time.Time
}

// PackingMaterial is one row of the packing_materials table.
type PackingMaterial struct {
	Name         string
	CurrentStock float64
	MinimumStock float64
	Unit         string
}

// GasCylinder is one row of the gas_tracking table.
type GasCylinder struct {
	CylinderID    string
	Status        string
	DaysRemaining float64
	UpdatedAt     time.Time
}

// Snapshot is one consistent read of all four tables.
type Snapshot struct {
	Inventory        []InventoryItem
	CleaningTasks    []CleaningTask
	PackingMaterials []PackingMaterial
	GasCylinders     []GasCylinder
}

// Store wraps the kitchen database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the kitchen database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS inventory (
	item_name     TEXT PRIMARY KEY,
	qty_purchased REAL NOT NULL DEFAULT 0,
	qty_used      REAL NOT NULL DEFAULT 0,
	reorder_level REAL NOT NULL DEFAULT 0,
	unit          TEXT NOT NULL DEFAULT '',
	updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
CREATE TABLE IF NOT EXISTS cleaning_maintenance (
	task_name   TEXT PRIMARY KEY,
	assigned_to TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	next_due    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS packing_materials (
	material_name TEXT PRIMARY KEY,
	current_stock REAL NOT NULL DEFAULT 0,
	minimum_stock REAL NOT NULL DEFAULT 0,
	unit          TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS gas_tracking (
	cylinder_id              TEXT PRIMARY KEY,
	status                   TEXT NOT NULL DEFAULT '',
	estimated_days_remaining REAL NOT NULL DEFAULT 0,
	updated_at               TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);`
	_, err := s.db.Exec(schema)
	return err
}

// Snapshot reads all four tables. Rows that fail to scan are skipped rather
// than failing the whole read; a partially missing table reads as empty.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Inventory, err = s.inventory(ctx); err != nil {
		return snap, err
	}
	if snap.CleaningTasks, err = s.cleaningTasks(ctx); err != nil {
		return snap, err
	}
	if snap.PackingMaterials, err = s.packingMaterials(ctx); err != nil {
		return snap, err
	}
	if snap.GasCylinders, err = s.gasCylinders(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *Store) inventory(ctx context.Context) ([]InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_name, qty_purchased, qty_used, reorder_level, unit FROM inventory`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		var it InventoryItem
		var name, unit sql.NullString
		var purchased, used, reorder sql.NullFloat64
		if err := rows.Scan(&name, &purchased, &used, &reorder, &unit); err != nil {
			s.logger.Warn("skip malformed inventory row", zap.Error(err))
			continue
		}
		if !name.Valid || name.String == "" {
			continue
		}
		it.Name = name.String
		it.Purchased = purchased.Float64
		it.Used = used.Float64
		it.ReorderLevel = reorder.Float64
		it.Unit = unit.String
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) cleaningTasks(ctx context.Context) ([]CleaningTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_name, assigned_to, location, next_due FROM cleaning_maintenance`)
	if err != nil {
		return nil, fmt.Errorf("query cleaning_maintenance: %w", err)
	}
	defer rows.Close()

	var tasks []CleaningTask
	for rows.Next() {
		var name, assigned, location, due sql.NullString
		if err := rows.Scan(&name, &assigned, &location, &due); err != nil {
			s.logger.Warn("skip malformed cleaning row", zap.Error(err))
			continue
		}
		if !name.Valid || name.String == "" {
			continue
		}
		task := CleaningTask{
			Name:       name.String,
			AssignedTo: assigned.String,
			Location:   location.String,
		}
		// An unparseable due date reads as "no condition": the zero time is
		// far in the past only if the row actually carried a date.
		if due.Valid && due.String != "" {
			if t, err := parseDate(due.String); err == nil {
				task.NextDue = t
			} else {
				continue
			}
		} else {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *Store) packingMaterials(ctx context.Context) ([]PackingMaterial, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT material_name, current_stock, minimum_stock, unit FROM packing_materials`)
	if err != nil {
		return nil, fmt.Errorf("query packing_materials: %w", err)
	}
	defer rows.Close()

	var materials []PackingMaterial
	for rows.Next() {
		var name, unit sql.NullString
		var current, minimum sql.NullFloat64
		if err := rows.Scan(&name, &current, &minimum, &unit); err != nil {
			s.logger.Warn("skip malformed packing row", zap.Error(err))
			continue
		}
		if !name.Valid || name.String == "" {
			continue
		}
		materials = append(materials, PackingMaterial{
			Name:         name.String,
			CurrentStock: current.Float64,
			MinimumStock: minimum.Float64,
			Unit:         unit.String,
		})
	}
	return materials, rows.Err()
}

func (s *Store) gasCylinders(ctx context.Context) ([]GasCylinder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cylinder_id, status, estimated_days_remaining, updated_at
		 FROM gas_tracking ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query gas_tracking: %w", err)
	}
	defer rows.Close()

	var cylinders []GasCylinder
	for rows.Next() {
		var id, status, updated sql.NullString
		var days sql.NullFloat64
		if err := rows.Scan(&id, &status, &days, &updated); err != nil {
			s.logger.Warn("skip malformed gas row", zap.Error(err))
			continue
		}
		if !id.Valid || id.String == "" {
			continue
		}
		c := GasCylinder{
			CylinderID:    id.String,
			Status:        status.String,
			DaysRemaining: days.Float64,
		}
		if updated.Valid {
			if t, err := parseDate(updated.String); err == nil {
				c.UpdatedAt = t
			}
		}
		cylinders = append(cylinders, c)
	}
	return cylinders, rows.Err()
}

// UpsertInventoryItem inserts or replaces one inventory row.
func (s *Store) UpsertInventoryItem(ctx context.Context, it InventoryItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inventory (item_name, qty_purchased, qty_used, reorder_level, unit, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(item_name) DO UPDATE SET
			qty_purchased = excluded.qty_purchased,
			qty_used      = excluded.qty_used,
			reorder_level = excluded.reorder_level,
			unit          = excluded.unit,
			updated_at    = excluded.updated_at`,
		it.Name, it.Purchased, it.Used, it.ReorderLevel, it.Unit,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// UpsertCleaningTask inserts or replaces one cleaning task row.
func (s *Store) UpsertCleaningTask(ctx context.Context, task CleaningTask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cleaning_maintenance (task_name, assigned_to, location, next_due)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(task_name) DO UPDATE SET
			assigned_to = excluded.assigned_to,
			location    = excluded.location,
			next_due    = excluded.next_due`,
		task.Name, task.AssignedTo, task.Location, task.NextDue.UTC().Format(time.RFC3339))
	return err
}

// UpsertPackingMaterial inserts or replaces one packing material row.
func (s *Store) UpsertPackingMaterial(ctx context.Context, m PackingMaterial) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO packing_materials (material_name, current_stock, minimum_stock, unit)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(material_name) DO UPDATE SET
			current_stock = excluded.current_stock,
			minimum_stock = excluded.minimum_stock,
			unit          = excluded.unit`,
		m.Name, m.CurrentStock, m.MinimumStock, m.Unit)
	return err
}

// UpsertGasCylinder inserts or replaces one gas cylinder row, stamping it as
// the most recently updated.
func (s *Store) UpsertGasCylinder(ctx context.Context, c GasCylinder) error {
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gas_tracking (cylinder_id, status, estimated_days_remaining, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(cylinder_id) DO UPDATE SET
			status                   = excluded.status,
			estimated_days_remaining = excluded.estimated_days_remaining,
			updated_at               = excluded.updated_at`,
		c.CylinderID, c.Status, c.DaysRemaining, updated.Format(time.RFC3339))
	return err
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}
