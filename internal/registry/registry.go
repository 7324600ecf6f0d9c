package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sudior04/iot-backend/internal/apperr"
	"github.com/sudior04/iot-backend/internal/config"
	"github.com/sudior04/iot-backend/internal/db"
	"github.com/sudior04/iot-backend/internal/repository"
)

// Registry resolves device identity and tracks per-device threshold
// configuration and online/uptime state.
type Registry struct {
	repo     *repository.Repository
	defaults db.Thresholds
	logger   *zap.Logger
}

// NewRegistry creates a device registry with the configured default
// thresholds.
func NewRegistry(repo *repository.Repository, cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		repo: repo,
		defaults: db.Thresholds{
			MQ135:       cfg.Devices.DefaultMQ135Threshold,
			MQ2:         cfg.Devices.DefaultMQ2Threshold,
			Humidity:    cfg.Devices.DefaultHumidityThreshold,
			Temperature: cfg.Devices.DefaultTemperatureThreshold,
		},
		logger: logger,
	}
}

// Resolve finds a device by its external identifier, creating it with
// default thresholds on first contact. It never fails on "not found".
func (g *Registry) Resolve(ctx context.Context, deviceID string) (*db.Device, error) {
	device, err := g.repo.GetOrCreateDevice(ctx, deviceID, g.defaults)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve device %s: %v", apperr.ErrPersistence, deviceID, err)
	}
	return device, nil
}

// Get returns a device without creating it
func (g *Registry) Get(ctx context.Context, deviceID string) (*db.Device, error) {
	device, err := g.repo.GetDevice(ctx, deviceID)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: device %s", apperr.ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get device %s: %v", apperr.ErrPersistence, deviceID, err)
	}
	return device, nil
}

// List returns all known devices
func (g *Registry) List(ctx context.Context) ([]*db.Device, error) {
	devices, err := g.repo.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %v", apperr.ErrPersistence, err)
	}
	return devices, nil
}

// SetStatus transitions a device's status. Online stamps last_online_at
// (and first_online_at once); offline closes the uptime session. Other
// statuses are recorded as-is.
func (g *Registry) SetStatus(ctx context.Context, deviceID, status string) (*db.Device, error) {
	var (
		device *db.Device
		err    error
	)
	switch status {
	case db.StatusOnline:
		device, err = g.repo.MarkDeviceOnline(ctx, deviceID)
	case db.StatusOffline:
		return g.CloseSession(ctx, deviceID)
	case db.StatusError, db.StatusMaintenance:
		device, err = g.repo.SetDeviceStatus(ctx, deviceID, status)
	default:
		return nil, fmt.Errorf("%w: unknown device status %q", apperr.ErrValidation, status)
	}

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: device %s", apperr.ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: set status of %s: %v", apperr.ErrPersistence, deviceID, err)
	}
	return device, nil
}

// CloseSession commits the elapsed online session to the uptime
// accumulator and marks the device offline. Idempotent: a second call
// with no intervening online transition changes nothing.
func (g *Registry) CloseSession(ctx context.Context, deviceID string) (*db.Device, error) {
	device, err := g.repo.CloseSession(ctx, deviceID)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: device %s", apperr.ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: close session of %s: %v", apperr.ErrPersistence, deviceID, err)
	}
	return device, nil
}

// UpdateThresholds applies a partial threshold update. Unset fields keep
// their previous values.
func (g *Registry) UpdateThresholds(ctx context.Context, deviceID string, patch db.ThresholdPatch) (*db.Device, error) {
	device, err := g.repo.UpdateThresholds(ctx, deviceID, patch)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: device %s", apperr.ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update thresholds of %s: %v", apperr.ErrPersistence, deviceID, err)
	}
	g.logger.Info("device thresholds updated", zap.String("device_id", deviceID))
	return device, nil
}

// UpdateMetadata applies a partial metadata update
func (g *Registry) UpdateMetadata(ctx context.Context, deviceID string, patch db.MetadataPatch) (*db.Device, error) {
	device, err := g.repo.UpdateMetadata(ctx, deviceID, patch)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: device %s", apperr.ErrNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update metadata of %s: %v", apperr.ErrPersistence, deviceID, err)
	}
	return device, nil
}

// Delete removes a device and, by cascade, its readings, settings and
// notifications.
func (g *Registry) Delete(ctx context.Context, deviceID string) error {
	err := g.repo.DeleteDevice(ctx, deviceID)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("%w: device %s", apperr.ErrNotFound, deviceID)
	}
	if err != nil {
		return fmt.Errorf("%w: delete device %s: %v", apperr.ErrPersistence, deviceID, err)
	}
	g.logger.Info("device deleted", zap.String("device_id", deviceID))
	return nil
}

// UptimeStatus is a device's uptime accounting at a point in time
type UptimeStatus struct {
	DeviceID              string
	Status                string
	LastOnlineAt          *time.Time
	FirstOnlineAt         *time.Time
	CurrentSessionSeconds int64
	TotalUptimeSeconds    int64
}

// Status returns a device's status with uptime accounting. The open
// session's elapsed time is computed on demand and is not persisted until
// the device goes offline, so total never double-counts.
func (g *Registry) Status(ctx context.Context, deviceID string) (*UptimeStatus, error) {
	device, err := g.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var session int64
	if device.Status == db.StatusOnline && device.LastOnlineAt != nil {
		session = int64(time.Since(*device.LastOnlineAt).Seconds())
		if session < 0 {
			session = 0
		}
	}

	return &UptimeStatus{
		DeviceID:              device.DeviceID,
		Status:                device.Status,
		LastOnlineAt:          device.LastOnlineAt,
		FirstOnlineAt:         device.FirstOnlineAt,
		CurrentSessionSeconds: session,
		TotalUptimeSeconds:    device.TotalUptimeSeconds + session,
	}, nil
}
