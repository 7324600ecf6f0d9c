package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sudior04/iot-backend/internal/apperr"
	"github.com/sudior04/iot-backend/internal/config"
	"github.com/sudior04/iot-backend/internal/db"
)

// Publisher is the outbound transport surface the dispatcher needs
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// ThresholdStore persists threshold changes alongside dispatch
type ThresholdStore interface {
	UpdateThresholds(ctx context.Context, deviceID string, patch db.ThresholdPatch) (*db.Device, error)
}

// Dispatcher publishes control messages to devices. Commands are
// fire-and-forget: a nil error means the transport accepted the publish,
// not that the device received it.
type Dispatcher struct {
	pub         Publisher
	thresholds  ThresholdStore
	topics      config.Topics
	minInterval int
	maxInterval int
	logger      *zap.Logger
}

// NewDispatcher creates a command dispatcher
func NewDispatcher(pub Publisher, thresholds ThresholdStore, cfg *config.Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pub:         pub,
		thresholds:  thresholds,
		topics:      cfg.Topics,
		minInterval: cfg.Commands.MinPublishIntervalSeconds,
		maxInterval: cfg.Commands.MaxPublishIntervalSeconds,
		logger:      logger,
	}
}

// RequestData asks a device to publish its current readings immediately
func (d *Dispatcher) RequestData(ctx context.Context, deviceID string) error {
	payload := map[string]interface{}{
		"deviceId":  deviceID,
		"command":   "GET_DATA",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	return d.publish(d.topics.CmdGetData, deviceID, payload)
}

// SilenceAlarm turns off a device's local alarm
func (d *Dispatcher) SilenceAlarm(ctx context.Context, deviceID string) error {
	payload := map[string]interface{}{
		"deviceId":  deviceID,
		"command":   "ALARM_OFF",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	return d.publish(d.topics.CmdAlarmOff, deviceID, payload)
}

// SetPublishInterval changes how often a device publishes readings
func (d *Dispatcher) SetPublishInterval(ctx context.Context, deviceID string, seconds int) error {
	if seconds < d.minInterval || seconds > d.maxInterval {
		return fmt.Errorf("%w: publish interval must be between %d and %d seconds",
			apperr.ErrValidation, d.minInterval, d.maxInterval)
	}

	payload := map[string]interface{}{
		"deviceId":  deviceID,
		"command":   "CHANGE_RATE",
		"interval":  seconds,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	return d.publish(d.topics.CmdChangeRate, deviceID, payload)
}

// SetThresholds validates, persists and dispatches a threshold change.
// Persistence happens first; when the transport then fails, the returned
// error wraps apperr.ErrTransportUnavailable and the thresholds stay
// saved — a partial success the caller can retry by re-dispatching, not a
// rollback.
func (d *Dispatcher) SetThresholds(ctx context.Context, deviceID string, patch db.ThresholdPatch) error {
	if err := validateThresholds(patch); err != nil {
		return err
	}

	device, err := d.thresholds.UpdateThresholds(ctx, deviceID, patch)
	if err != nil {
		return err
	}

	// Firmware expects the legacy field names.
	payload := map[string]interface{}{
		"deviceId":       deviceID,
		"THRESHOLD34":    device.Thresholds.MQ135,
		"THRESHOLD35":    device.Thresholds.MQ2,
		"THRESHOLD_HUMD": device.Thresholds.Humidity,
		"THRESHOLD_TEMP": device.Thresholds.Temperature,
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if err := d.publish(d.topics.CmdChangeThreshold, deviceID, payload); err != nil {
		return fmt.Errorf("thresholds persisted but not dispatched: %w", err)
	}
	return nil
}

func validateThresholds(patch db.ThresholdPatch) error {
	if patch.MQ135 != nil && *patch.MQ135 < 0 {
		return fmt.Errorf("%w: MQ135 threshold must be >= 0", apperr.ErrValidation)
	}
	if patch.MQ2 != nil && *patch.MQ2 < 0 {
		return fmt.Errorf("%w: MQ2 threshold must be >= 0", apperr.ErrValidation)
	}
	if patch.Humidity != nil && (*patch.Humidity < 0 || *patch.Humidity > 100) {
		return fmt.Errorf("%w: humidity threshold must be within 0-100%%", apperr.ErrValidation)
	}
	if patch.Temperature != nil && (*patch.Temperature < -50 || *patch.Temperature > 100) {
		return fmt.Errorf("%w: temperature threshold must be within -50 to 100°C", apperr.ErrValidation)
	}
	return nil
}

func (d *Dispatcher) publish(topic, deviceID string, payload map[string]interface{}) error {
	if !d.pub.IsConnected() {
		return fmt.Errorf("%w: cannot dispatch command while disconnected", apperr.ErrTransportUnavailable)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	if err := d.pub.Publish(topic, body); err != nil {
		return err
	}

	d.logger.Info("command dispatched",
		zap.String("topic", topic),
		zap.String("device_id", deviceID),
	)
	return nil
}
