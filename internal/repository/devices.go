package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sudior04/iot-backend/internal/db"
)

const deviceColumns = `
	id, device_id, mq135_threshold, mq2_threshold, humidity_threshold,
	temp_threshold, status, last_online_at, first_online_at,
	total_uptime_seconds, firmware_version, location, description,
	created_at, updated_at
`

func scanDevice(row pgx.Row) (*db.Device, error) {
	var d db.Device
	err := row.Scan(
		&d.ID,
		&d.DeviceID,
		&d.Thresholds.MQ135,
		&d.Thresholds.MQ2,
		&d.Thresholds.Humidity,
		&d.Thresholds.Temperature,
		&d.Status,
		&d.LastOnlineAt,
		&d.FirstOnlineAt,
		&d.TotalUptimeSeconds,
		&d.FirmwareVersion,
		&d.Location,
		&d.Description,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDevice retrieves a device by its external identifier. Returns
// pgx.ErrNoRows when unknown; the registry maps that to its own error.
func (r *Repository) GetDevice(ctx context.Context, deviceID string) (*db.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = $1`
	return scanDevice(r.pool.QueryRow(ctx, query, deviceID))
}

// GetOrCreateDevice retrieves a device or creates it with the given
// default thresholds. Creation races resolve via the unique device_id
// constraint: on conflict the insert is a no-op and the existing row wins.
func (r *Repository) GetOrCreateDevice(ctx context.Context, deviceID string, defaults db.Thresholds) (*db.Device, error) {
	device, err := r.GetDevice(ctx, deviceID)
	if err == nil {
		return device, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	insertQuery := `
		INSERT INTO devices (device_id, mq135_threshold, mq2_threshold, humidity_threshold, temp_threshold, status)
		VALUES ($1, $2, $3, $4, $5, 'offline')
		ON CONFLICT (device_id) DO UPDATE SET updated_at = now()
		RETURNING ` + deviceColumns

	device, err = scanDevice(r.pool.QueryRow(ctx, insertQuery, deviceID,
		defaults.MQ135, defaults.MQ2, defaults.Humidity, defaults.Temperature))
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

// ListDevices returns all devices ordered by external identifier
func (r *Repository) ListDevices(ctx context.Context) ([]*db.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY device_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*db.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return devices, nil
}

// MarkDeviceOnline transitions a device to online in a single statement:
// last_online_at is stamped, first_online_at only on the first transition.
func (r *Repository) MarkDeviceOnline(ctx context.Context, deviceID string) (*db.Device, error) {
	query := `
		UPDATE devices
		SET status = 'online',
		    last_online_at = CASE WHEN status = 'online' THEN last_online_at ELSE now() END,
		    first_online_at = COALESCE(first_online_at, now()),
		    updated_at = now()
		WHERE device_id = $1
		RETURNING ` + deviceColumns

	return scanDevice(r.pool.QueryRow(ctx, query, deviceID))
}

// SetDeviceStatus sets a non-session status (error, maintenance). Online
// and offline transitions go through MarkDeviceOnline / CloseSession so
// uptime accounting stays consistent.
func (r *Repository) SetDeviceStatus(ctx context.Context, deviceID, status string) (*db.Device, error) {
	query := `
		UPDATE devices
		SET status = $2, updated_at = now()
		WHERE device_id = $1
		RETURNING ` + deviceColumns

	return scanDevice(r.pool.QueryRow(ctx, query, deviceID, status))
}

// CloseSession commits the elapsed online session to total_uptime_seconds
// and sets the device offline. The status = 'online' guard makes a second
// call with no intervening online transition a no-op, and the single
// conditional UPDATE keeps the read-modify-write atomic under concurrent
// ingestion and API traffic.
func (r *Repository) CloseSession(ctx context.Context, deviceID string) (*db.Device, error) {
	query := `
		UPDATE devices
		SET total_uptime_seconds = total_uptime_seconds
		        + GREATEST(0, EXTRACT(EPOCH FROM (now() - last_online_at)))::bigint,
		    status = 'offline',
		    updated_at = now()
		WHERE device_id = $1 AND status = 'online' AND last_online_at IS NOT NULL
		RETURNING ` + deviceColumns

	device, err := scanDevice(r.pool.QueryRow(ctx, query, deviceID))
	if err == pgx.ErrNoRows {
		// No open session: return the device unchanged.
		return r.GetDevice(ctx, deviceID)
	}
	return device, err
}

// UpdateThresholds applies a partial threshold update atomically. Nil
// patch fields keep their current value.
func (r *Repository) UpdateThresholds(ctx context.Context, deviceID string, patch db.ThresholdPatch) (*db.Device, error) {
	query := `
		UPDATE devices
		SET mq135_threshold = COALESCE($2, mq135_threshold),
		    mq2_threshold = COALESCE($3, mq2_threshold),
		    humidity_threshold = COALESCE($4, humidity_threshold),
		    temp_threshold = COALESCE($5, temp_threshold),
		    updated_at = now()
		WHERE device_id = $1
		RETURNING ` + deviceColumns

	return scanDevice(r.pool.QueryRow(ctx, query, deviceID,
		patch.MQ135, patch.MQ2, patch.Humidity, patch.Temperature))
}

// DeleteDevice removes a device. Readings, settings and notifications
// cascade.
func (r *Repository) DeleteDevice(ctx context.Context, deviceID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateMetadata applies a partial metadata update atomically
func (r *Repository) UpdateMetadata(ctx context.Context, deviceID string, patch db.MetadataPatch) (*db.Device, error) {
	query := `
		UPDATE devices
		SET firmware_version = COALESCE($2, firmware_version),
		    location = COALESCE($3, location),
		    description = COALESCE($4, description),
		    updated_at = now()
		WHERE device_id = $1
		RETURNING ` + deviceColumns

	return scanDevice(r.pool.QueryRow(ctx, query, deviceID,
		patch.FirmwareVersion, patch.Location, patch.Description))
}
