package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sudior04/iot-backend/internal/db"
)

const settingsColumns = `
	id, device_id, user_id, enabled,
	alerts_pm25, alerts_mq135, alerts_mq2, alerts_temperature,
	alerts_humidity, alerts_device_offline,
	quiet_hours_enabled, quiet_hours_start, quiet_hours_end,
	max_per_hour, created_at, updated_at
`

func scanSettings(row pgx.Row) (*db.NotificationSettings, error) {
	var s db.NotificationSettings
	err := row.Scan(
		&s.ID,
		&s.DeviceID,
		&s.UserID,
		&s.Enabled,
		&s.Categories.PM25,
		&s.Categories.MQ135,
		&s.Categories.MQ2,
		&s.Categories.Temperature,
		&s.Categories.Humidity,
		&s.Categories.DeviceOffline,
		&s.QuietHoursEnabled,
		&s.QuietHoursStart,
		&s.QuietHoursEnd,
		&s.MaxPerHour,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreateSettings returns the notification settings for a device,
// lazily creating the all-enabled defaults on first lookup.
func (r *Repository) GetOrCreateSettings(ctx context.Context, deviceID uuid.UUID) (*db.NotificationSettings, error) {
	query := `SELECT ` + settingsColumns + ` FROM notification_settings WHERE device_id = $1`

	settings, err := scanSettings(r.pool.QueryRow(ctx, query, deviceID))
	if err == nil {
		return settings, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to query notification settings: %w", err)
	}

	insertQuery := `
		INSERT INTO notification_settings (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO UPDATE SET updated_at = now()
		RETURNING ` + settingsColumns

	settings, err = scanSettings(r.pool.QueryRow(ctx, insertQuery, deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings applies a partial settings update. The row is created
// with defaults first when missing, so a partial update on a fresh device
// behaves like an upsert.
func (r *Repository) UpdateSettings(ctx context.Context, deviceID uuid.UUID, patch db.SettingsPatch) (*db.NotificationSettings, error) {
	if _, err := r.GetOrCreateSettings(ctx, deviceID); err != nil {
		return nil, err
	}

	query := `
		UPDATE notification_settings
		SET enabled = COALESCE($2, enabled),
		    alerts_pm25 = COALESCE($3, alerts_pm25),
		    alerts_mq135 = COALESCE($4, alerts_mq135),
		    alerts_mq2 = COALESCE($5, alerts_mq2),
		    alerts_temperature = COALESCE($6, alerts_temperature),
		    alerts_humidity = COALESCE($7, alerts_humidity),
		    alerts_device_offline = COALESCE($8, alerts_device_offline),
		    quiet_hours_enabled = COALESCE($9, quiet_hours_enabled),
		    quiet_hours_start = COALESCE($10, quiet_hours_start),
		    quiet_hours_end = COALESCE($11, quiet_hours_end),
		    max_per_hour = COALESCE($12, max_per_hour),
		    updated_at = now()
		WHERE device_id = $1
		RETURNING ` + settingsColumns

	settings, err := scanSettings(r.pool.QueryRow(ctx, query, deviceID,
		patch.Enabled,
		patch.PM25,
		patch.MQ135,
		patch.MQ2,
		patch.Temperature,
		patch.Humidity,
		patch.DeviceOffline,
		patch.QuietHoursEnabled,
		patch.QuietHoursStart,
		patch.QuietHoursEnd,
		patch.MaxPerHour,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update notification settings: %w", err)
	}
	return settings, nil
}
