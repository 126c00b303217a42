// internal/registry/repo.go
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/fisaks/rfedge/internal/logging"
)

// Device is a registered device and its last commanded state. References
// lists, comma separated, the ids that follow this device's state.
type Device struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	GroupID      int    `json:"groupId"`
	CurrentState bool   `json:"currentState"`
	References   string `json:"references"`
}

func NewDevice(name string, groupID int, currentState bool) *Device {
	return &Device{Name: name, GroupID: groupID, CurrentState: currentState}
}

// ReferenceIDs parses References.
func (d *Device) ReferenceIDs() []int64 {
	if d.References == "" {
		return nil
	}
	var out []int64
	for _, s := range strings.Split(d.References, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

type Repo struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w", path, err)
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)
	return &Repo{db: db}, nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name VARCHAR(100) NOT NULL,
	group_id INTEGER NOT NULL,
	current_state BIT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS device_ref_device (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id INTEGER REFERENCES devices(id) NOT NULL,
	reference_device_id INTEGER REFERENCES devices(id) NOT NULL
);`

// EnsureCreated creates the tables when missing. Safe to call repeatedly.
func (r *Repo) EnsureCreated(ctx context.Context) error {
	var name string
	err := r.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='devices'").Scan(&name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	logging.Info("Registry tables missing, creating")
	_, err = r.db.ExecContext(ctx, schema)
	return err
}

const selectDevices = `
SELECT d.id, d.name, d.group_id, d.current_state, coalesce(refs.refs, '')
FROM devices AS d
LEFT OUTER JOIN (
	SELECT device_id, group_concat(reference_device_id) AS refs
	FROM device_ref_device GROUP BY device_id
) AS refs ON d.id = refs.device_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	if err := s.Scan(&d.ID, &d.Name, &d.GroupID, &d.CurrentState, &d.References); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repo) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *Repo) GetDevices(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectDevices+" ORDER BY d.id")
}

func (r *Repo) GetGroup(ctx context.Context, groupID int) ([]Device, error) {
	return r.queryDevices(ctx, selectDevices+" WHERE d.group_id = ? ORDER BY d.id", groupID)
}

// GetDevice returns nil, nil when no device has id.
func (r *Repo) GetDevice(ctx context.Context, id int64) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, selectDevices+" WHERE d.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device %d: %w", id, err)
	}
	return d, nil
}

// AddDevice inserts d and sets its generated id. The state column starts
// at its default.
func (r *Repo) AddDevice(ctx context.Context, d *Device) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO devices(name, group_id) VALUES(?, ?)", d.Name, d.GroupID)
	if err != nil {
		return fmt.Errorf("insert device %q: %w", d.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

// UpdateDevice stores d's state on d and on every device it references.
func (r *Repo) UpdateDevice(ctx context.Context, d *Device) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE devices SET current_state = ?1
WHERE id = ?2 OR id IN (SELECT reference_device_id FROM device_ref_device WHERE device_id = ?2)`,
		d.CurrentState, d.ID)
	if err != nil {
		return fmt.Errorf("update device %d: %w", d.ID, err)
	}
	return nil
}

// UpdateDevices stores each device's own state in one transaction.
func (r *Repo) UpdateDevices(ctx context.Context, devices []Device) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE devices SET current_state = ? WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range devices {
		if _, err := stmt.ExecContext(ctx, d.CurrentState, d.ID); err != nil {
			return fmt.Errorf("update device %d: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// AddReference makes refID follow deviceID's state on UpdateDevice.
func (r *Repo) AddReference(ctx context.Context, deviceID, refID int64) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO device_ref_device(device_id, reference_device_id) VALUES(?, ?)", deviceID, refID)
	return err
}

func (r *Repo) GetReferences(ctx context.Context, deviceID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT reference_device_id FROM device_ref_device WHERE device_id = ? ORDER BY id", deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
