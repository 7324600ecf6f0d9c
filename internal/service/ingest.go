package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudior04/iot-backend/internal/config"
	"github.com/sudior04/iot-backend/internal/db"
	"github.com/sudior04/iot-backend/internal/evaluator"
	"github.com/sudior04/iot-backend/internal/logging"
	"github.com/sudior04/iot-backend/internal/mq"
	"github.com/sudior04/iot-backend/internal/normalizer"
)

// DeviceRegistry is the registry surface the pipeline needs
type DeviceRegistry interface {
	Resolve(ctx context.Context, deviceID string) (*db.Device, error)
	SetStatus(ctx context.Context, deviceID, status string) (*db.Device, error)
	CloseSession(ctx context.Context, deviceID string) (*db.Device, error)
	UpdateMetadata(ctx context.Context, deviceID string, patch db.MetadataPatch) (*db.Device, error)
}

// ReadingAppender persists canonical readings
type ReadingAppender interface {
	Append(ctx context.Context, reading *db.Reading) (*db.Reading, error)
}

// PolicyEngine filters candidate events into persisted notifications
type PolicyEngine interface {
	Apply(ctx context.Context, deviceID, readingID uuid.UUID, candidates []evaluator.Candidate) []*db.Notification
}

// Broadcaster fans events out to live subscribers, fire-and-forget
type Broadcaster interface {
	Broadcast(event interface{})
}

// ReadingUpdate is broadcast to live subscribers for every new reading
type ReadingUpdate struct {
	DeviceID  string             `json:"deviceId"`
	Data      map[string]float64 `json:"data"`
	Timestamp string             `json:"timestamp"`
}

// NotificationUpdate is broadcast for every created notification
type NotificationUpdate struct {
	DeviceID       string `json:"deviceId"`
	NotificationID string `json:"notificationId"`
	Category       string `json:"category"`
	Message        string `json:"message"`
	Severity       string `json:"severity"`
	Timestamp      string `json:"timestamp"`
}

// IngestService runs the inbound pipeline: normalize, resolve the device,
// persist the reading, evaluate thresholds, apply notification policy,
// fan out. Messages are processed one at a time per connection; a failure
// aborts only that message.
type IngestService struct {
	cfg        *config.Config
	registry   DeviceRegistry
	normalizer *normalizer.Normalizer
	readings   ReadingAppender
	policy     PolicyEngine
	hub        Broadcaster
	relay      *mq.Publisher
	logger     *zap.Logger
}

// NewIngestService creates the ingestion pipeline
func NewIngestService(
	cfg *config.Config,
	registry DeviceRegistry,
	norm *normalizer.Normalizer,
	readings ReadingAppender,
	policy PolicyEngine,
	hub Broadcaster,
	relay *mq.Publisher,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		cfg:        cfg,
		registry:   registry,
		normalizer: norm,
		readings:   readings,
		policy:     policy,
		hub:        hub,
		relay:      relay,
		logger:     logger,
	}
}

// HandleMessage routes one inbound message by topic. It is the single
// handler injected into the transport subscription; errors are returned
// for logging and never stop the loop.
func (s *IngestService) HandleMessage(topic string, payload []byte) error {
	ctx := context.Background()

	switch topic {
	case s.cfg.Topics.Data:
		return s.handleSensorData(ctx, payload)
	case s.cfg.Topics.Event:
		return s.handleDeviceEvent(ctx, payload)
	case s.cfg.Topics.Status:
		return s.handleDeviceStatus(ctx, payload)
	default:
		// The wildcard subscription also sees our own outbound command
		// topics; those are not inbound telemetry.
		s.logger.Debug("ignoring message on unhandled topic", zap.String("topic", topic))
		return nil
	}
}

// handleSensorData runs the full telemetry pipeline for one data message
func (s *IngestService) handleSensorData(ctx context.Context, payload []byte) error {
	sample, _, err := s.normalizer.Normalize(payload)
	if err != nil {
		return err
	}
	if sample.Empty() {
		// Heartbeats and keepalives carry no metrics; expected, not an error.
		s.logger.Warn("message with no recognized metrics dropped",
			zap.String("device_id", sample.DeviceID))
		return nil
	}

	log := logging.WithDevice(s.logger, sample.DeviceID)

	device, err := s.registry.Resolve(ctx, sample.DeviceID)
	if err != nil {
		return err
	}
	if _, err := s.registry.SetStatus(ctx, device.DeviceID, db.StatusOnline); err != nil {
		return err
	}

	reading, err := s.readings.Append(ctx, s.buildReading(device.ID, sample))
	if err != nil {
		return err
	}
	log.Info("reading stored", zap.String("reading_id", reading.ID.String()))

	s.emitReading(ctx, device, reading)

	candidates := evaluator.Evaluate(device.Thresholds, reading)
	for _, n := range s.policy.Apply(ctx, device.ID, reading.ID, candidates) {
		s.emitNotification(ctx, device, n)
	}
	return nil
}

// handleDeviceEvent persists the accompanying reading and turns the
// device-reported event into a policy-gated notification.
func (s *IngestService) handleDeviceEvent(ctx context.Context, payload []byte) error {
	sample, raw, err := s.normalizer.Normalize(payload)
	if err != nil {
		return err
	}

	event, _ := raw["event"].(string)
	if event == "" {
		s.logger.Warn("event message without event type dropped",
			zap.String("device_id", sample.DeviceID))
		return nil
	}

	device, err := s.registry.Resolve(ctx, sample.DeviceID)
	if err != nil {
		return err
	}
	if _, err := s.registry.SetStatus(ctx, device.DeviceID, db.StatusOnline); err != nil {
		return err
	}

	// Event messages keep their reading row even when metric-free so the
	// notification has something to reference.
	reading, err := s.readings.Append(ctx, s.buildReading(device.ID, sample))
	if err != nil {
		return err
	}
	if !sample.Empty() {
		s.emitReading(ctx, device, reading)
	}

	message, _ := raw["message"].(string)
	if message == "" {
		message = fmt.Sprintf("device reported event: %s", event)
	}

	candidate := evaluator.Candidate{
		Category: event,
		Message:  message,
		Severity: evaluator.SeverityForEvent(event),
	}
	for _, n := range s.policy.Apply(ctx, device.ID, reading.ID, []evaluator.Candidate{candidate}) {
		s.emitNotification(ctx, device, n)
	}
	return nil
}

// handleDeviceStatus applies status and metadata reports
func (s *IngestService) handleDeviceStatus(ctx context.Context, payload []byte) error {
	sample, raw, err := s.normalizer.Normalize(payload)
	if err != nil {
		return err
	}

	device, err := s.registry.Resolve(ctx, sample.DeviceID)
	if err != nil {
		return err
	}

	status, _ := raw["status"].(string)
	if status == "" {
		status = db.StatusOnline
	}

	if status == db.StatusOffline {
		if _, err := s.registry.CloseSession(ctx, device.DeviceID); err != nil {
			return err
		}
	} else {
		if _, err := s.registry.SetStatus(ctx, device.DeviceID, status); err != nil {
			return err
		}
	}

	patch := db.MetadataPatch{}
	if fw, ok := raw["firmwareVersion"].(string); ok && fw != "" {
		patch.FirmwareVersion = &fw
	}
	if loc, ok := raw["location"].(string); ok && loc != "" {
		patch.Location = &loc
	}
	if patch.FirmwareVersion != nil || patch.Location != nil {
		if _, err := s.registry.UpdateMetadata(ctx, device.DeviceID, patch); err != nil {
			return err
		}
	}

	s.logger.Info("device status updated",
		zap.String("device_id", device.DeviceID),
		zap.String("status", status),
	)
	return nil
}

func (s *IngestService) buildReading(deviceID uuid.UUID, sample *normalizer.Sample) *db.Reading {
	recordedAt := time.Now()
	if sample.RecordedAt != nil {
		recordedAt = *sample.RecordedAt
	}
	return &db.Reading{
		DeviceID:    deviceID,
		PM25:        sample.PM25,
		MQ135:       sample.MQ135,
		MQ2:         sample.MQ2,
		Temperature: sample.Temperature,
		Humidity:    sample.Humidity,
		RecordedAt:  recordedAt,
	}
}

// emitReading fans a stored reading out to live subscribers and the
// downstream relay. Both are best-effort.
func (s *IngestService) emitReading(ctx context.Context, device *db.Device, reading *db.Reading) {
	metrics := readingMetrics(reading)

	s.hub.Broadcast(ReadingUpdate{
		DeviceID:  device.DeviceID,
		Data:      metrics,
		Timestamp: reading.CreatedAt.Format(time.RFC3339),
	})

	if err := s.relay.PublishEvent(ctx, s.cfg.RabbitMQ.ReadingRoutingKey, mq.ReadingEvent{
		DeviceID:   device.DeviceID,
		ReadingID:  reading.ID.String(),
		Metrics:    metrics,
		RecordedAt: reading.RecordedAt.Format(time.RFC3339),
	}); err != nil {
		s.logger.Error("failed to relay reading event",
			zap.Error(err),
			zap.String("device_id", device.DeviceID),
		)
	}
}

func (s *IngestService) emitNotification(ctx context.Context, device *db.Device, n *db.Notification) {
	s.hub.Broadcast(NotificationUpdate{
		DeviceID:       device.DeviceID,
		NotificationID: n.ID.String(),
		Category:       n.Category,
		Message:        n.Message,
		Severity:       n.Severity,
		Timestamp:      n.CreatedAt.Format(time.RFC3339),
	})

	if err := s.relay.PublishEvent(ctx, s.cfg.RabbitMQ.NotificationRoutingKey, mq.NotificationEvent{
		DeviceID:       device.DeviceID,
		NotificationID: n.ID.String(),
		Category:       n.Category,
		Severity:       n.Severity,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt.Format(time.RFC3339),
	}); err != nil {
		s.logger.Error("failed to relay notification event",
			zap.Error(err),
			zap.String("device_id", device.DeviceID),
		)
	}
}

func readingMetrics(r *db.Reading) map[string]float64 {
	metrics := make(map[string]float64)
	if r.PM25 != nil {
		metrics[normalizer.MetricPM25] = *r.PM25
	}
	if r.MQ135 != nil {
		metrics[normalizer.MetricMQ135] = *r.MQ135
	}
	if r.MQ2 != nil {
		metrics[normalizer.MetricMQ2] = *r.MQ2
	}
	if r.Temperature != nil {
		metrics[normalizer.MetricTemperature] = *r.Temperature
	}
	if r.Humidity != nil {
		metrics[normalizer.MetricHumidity] = *r.Humidity
	}
	return metrics
}
