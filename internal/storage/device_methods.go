package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// ========== Device Methods ==========

// CreateDevice creates a new device
func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) error {
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
        INSERT INTO devices (
            mac, created_at, updated_at, name, description, blind_type,
            has_speed, is_disabled
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8
        )`

	_, err := s.db.ExecContext(ctx, query,
		device.MAC, device.CreatedAt, device.UpdatedAt, device.Name,
		device.Description, device.BlindType, device.HasSpeed, device.IsDisabled,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetDevice gets a device by hardware address
func (s *PostgresStore) GetDevice(ctx context.Context, mac motion.MACAddress) (*models.Device, error) {
	query := `
        SELECT mac, created_at, updated_at, name, description, blind_type,
               has_speed, is_disabled, last_seen_at
        FROM devices
        WHERE mac = $1`

	device := &models.Device{}

	err := s.db.QueryRowContext(ctx, query, mac).Scan(
		&device.MAC, &device.CreatedAt, &device.UpdatedAt, &device.Name,
		&device.Description, &device.BlindType, &device.HasSpeed,
		&device.IsDisabled, &device.LastSeenAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return device, nil
}

// UpdateDevice updates a device
func (s *PostgresStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now()

	query := `
        UPDATE devices
        SET updated_at = $2, name = $3, description = $4, blind_type = $5,
            has_speed = $6, is_disabled = $7
        WHERE mac = $1`

	result, err := s.db.ExecContext(ctx, query,
		device.MAC, device.UpdatedAt, device.Name, device.Description,
		device.BlindType, device.HasSpeed, device.IsDisabled,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteDevice deletes a device
func (s *PostgresStore) DeleteDevice(ctx context.Context, mac motion.MACAddress) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE mac = $1`, mac)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListDevices lists devices with pagination
func (s *PostgresStore) ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT mac, created_at, updated_at, name, description, blind_type,
               has_speed, is_disabled, last_seen_at
        FROM devices
        ORDER BY name, mac
        LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device := &models.Device{}
		if err := rows.Scan(
			&device.MAC, &device.CreatedAt, &device.UpdatedAt, &device.Name,
			&device.Description, &device.BlindType, &device.HasSpeed,
			&device.IsDisabled, &device.LastSeenAt,
		); err != nil {
			return nil, 0, err
		}
		devices = append(devices, device)
	}

	return devices, total, rows.Err()
}

// TouchDeviceSeen updates the last-seen timestamp after a successful exchange
func (s *PostgresStore) TouchDeviceSeen(ctx context.Context, mac motion.MACAddress, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET last_seen_at = $2 WHERE mac = $1`, mac, at)
	return err
}
