// SPDX-License-Identifier: MIT

// Package store persists the small amount of client state that must survive
// restarts: last playback position per item and the last cast device used
// for auto-reconnect.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

const schemaVersion = 1

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("store: not found")

// ResumeRecord is the persisted playback position for one item.
type ResumeRecord struct {
	ItemID     string
	PositionMS int64
	DurationMS int64
	Watched    bool
	UpdatedAt  time.Time
}

// CastDeviceRecord remembers the last connected cast device.
type CastDeviceRecord struct {
	DeviceID    string
	DeviceName  string
	SessionID   string
	ConnectedAt time.Time
}

// Store is a sqlite-backed state store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open initialises the store at dbPath and runs schema migration.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	db.SetMaxOpenConns(4)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS resume_positions (
		item_id TEXT PRIMARY KEY,
		position_ms INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		watched INTEGER NOT NULL DEFAULT 0,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cast_device (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		device_id TEXT NOT NULL,
		device_name TEXT NOT NULL,
		session_id TEXT NOT NULL,
		connected_at_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// PutResume upserts the resume position for an item.
func (s *Store) PutResume(ctx context.Context, rec ResumeRecord) error {
	watched := 0
	if rec.Watched {
		watched = 1
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resume_positions (item_id, position_ms, duration_ms, watched, updated_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			position_ms = excluded.position_ms,
			duration_ms = excluded.duration_ms,
			watched = excluded.watched,
			updated_at_ms = excluded.updated_at_ms
	`, rec.ItemID, rec.PositionMS, rec.DurationMS, watched, updated.UnixMilli())
	return err
}

// GetResume returns the stored resume position for an item.
func (s *Store) GetResume(ctx context.Context, itemID string) (ResumeRecord, error) {
	var rec ResumeRecord
	var watched int
	var updatedMS int64
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, position_ms, duration_ms, watched, updated_at_ms
		FROM resume_positions WHERE item_id = ?
	`, itemID).Scan(&rec.ItemID, &rec.PositionMS, &rec.DurationMS, &watched, &updatedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return ResumeRecord{}, ErrNotFound
	}
	if err != nil {
		return ResumeRecord{}, err
	}
	rec.Watched = watched != 0
	rec.UpdatedAt = time.UnixMilli(updatedMS)
	return rec, nil
}

// DeleteResume removes the stored position, typically once an item is watched
// to completion.
func (s *Store) DeleteResume(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM resume_positions WHERE item_id = ?", itemID)
	return err
}

// PutCastDevice replaces the remembered cast device.
func (s *Store) PutCastDevice(ctx context.Context, rec CastDeviceRecord) error {
	connected := rec.ConnectedAt
	if connected.IsZero() {
		connected = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cast_device (id, device_id, device_name, session_id, connected_at_ms)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			device_name = excluded.device_name,
			session_id = excluded.session_id,
			connected_at_ms = excluded.connected_at_ms
	`, rec.DeviceID, rec.DeviceName, rec.SessionID, connected.UnixMilli())
	return err
}

// GetCastDevice returns the remembered cast device, if any.
func (s *Store) GetCastDevice(ctx context.Context) (CastDeviceRecord, error) {
	var rec CastDeviceRecord
	var connectedMS int64
	err := s.db.QueryRowContext(ctx, `
		SELECT device_id, device_name, session_id, connected_at_ms FROM cast_device WHERE id = 1
	`).Scan(&rec.DeviceID, &rec.DeviceName, &rec.SessionID, &connectedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return CastDeviceRecord{}, ErrNotFound
	}
	if err != nil {
		return CastDeviceRecord{}, err
	}
	rec.ConnectedAt = time.UnixMilli(connectedMS)
	return rec, nil
}

// ClearCastDevice forgets the remembered cast device.
func (s *Store) ClearCastDevice(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cast_device WHERE id = 1")
	return err
}
