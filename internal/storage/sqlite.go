// Package storage persists agent inventories and vendor stock in SQLite
// between sessions. Stores are saved as their JSON snapshot and re-validated
// against the catalog limits when loaded.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/pkg/models"
)

// ErrNotFound is returned when no row exists for the requested key.
var ErrNotFound = errors.New("storage: not found")

// DB wraps the SQLite handle.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and schema if needed.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, now: time.Now}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS inventories (
			agent_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS vendor_stock (
			station_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveInventory upserts the agent's store together with the participant
// that controls it. The caller must hold the store.
func (d *DB) SaveInventory(ctx context.Context, agent models.AgentID, owner models.ParticipantID, store *inventory.Store) error {
	data, err := store.Serialize()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", agent, err)
	}
	_, err = d.db.ExecContext(ctx, `INSERT INTO inventories (agent_id, owner, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET owner = excluded.owner, data = excluded.data, updated_at = excluded.updated_at`,
		string(agent), string(owner), string(data), d.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s: %w", agent, err)
	}
	return nil
}

// OwnerOf returns the participant recorded as controlling agent.
func (d *DB) OwnerOf(ctx context.Context, agent models.AgentID) (models.ParticipantID, error) {
	var owner string
	err := d.db.QueryRowContext(ctx, `SELECT owner FROM inventories WHERE agent_id = ?`, string(agent)).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("owner of %s: %w", agent, err)
	}
	return models.ParticipantID(owner), nil
}

// LoadInventory restores the agent's store into dst, keeping dst's limits.
func (d *DB) LoadInventory(ctx context.Context, agent models.AgentID, dst *inventory.Store) error {
	return d.load(ctx, "inventories", "agent_id", string(agent), dst)
}

// SaveVendor upserts a vendor's stock.
func (d *DB) SaveVendor(ctx context.Context, st models.StationID, store *inventory.Store) error {
	data, err := store.Serialize()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", st, err)
	}
	_, err = d.db.ExecContext(ctx, `INSERT INTO vendor_stock (station_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(st), string(data), d.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s: %w", st, err)
	}
	return nil
}

// LoadVendor restores a vendor's stock into dst.
func (d *DB) LoadVendor(ctx context.Context, st models.StationID, dst *inventory.Store) error {
	return d.load(ctx, "vendor_stock", "station_id", string(st), dst)
}

// table and column are package constants, never caller input.
func (d *DB) load(ctx context.Context, table, column, key string, dst *inventory.Store) error {
	var data string
	q := fmt.Sprintf(`SELECT data FROM %s WHERE %s = ?`, table, column)
	err := d.db.QueryRowContext(ctx, q, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := dst.Deserialize([]byte(data)); err != nil {
		return fmt.Errorf("restore %s: %w", key, err)
	}
	return nil
}
