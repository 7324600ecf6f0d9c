package policy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudior04/iot-backend/internal/db"
	"github.com/sudior04/iot-backend/internal/evaluator"
)

// rateWindow is the trailing window the rate cap counts over
const rateWindow = 60 * time.Minute

// SettingsStore provides notification settings lookup with lazy creation
type SettingsStore interface {
	GetOrCreateSettings(ctx context.Context, deviceID uuid.UUID) (*db.NotificationSettings, error)
}

// NotificationStore persists notifications and counts them for the
// sliding-window rate cap.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *db.Notification) (*db.Notification, error)
	CountNotificationsSince(ctx context.Context, deviceID uuid.UUID, since time.Time) (int, error)
}

// Engine decides whether candidate alert events become persisted
// notifications. Alerting is best-effort: every failure inside the engine
// is logged and swallowed, because losing an alert is preferable to
// losing the sensor reading being processed.
type Engine struct {
	settings      SettingsStore
	notifications NotificationStore
	now           func() time.Time
	logger        *zap.Logger
}

// NewEngine creates a policy engine using the real clock
func NewEngine(settings SettingsStore, notifications NotificationStore, logger *zap.Logger) *Engine {
	return NewEngineWithClock(settings, notifications, time.Now, logger)
}

// NewEngineWithClock creates a policy engine with an injected clock, used
// by tests to pin quiet-hours and rate-window evaluation.
func NewEngineWithClock(settings SettingsStore, notifications NotificationStore, now func() time.Time, logger *zap.Logger) *Engine {
	return &Engine{
		settings:      settings,
		notifications: notifications,
		now:           now,
		logger:        logger,
	}
}

// Apply runs each candidate through the suppression checks in order and
// persists the survivors, returning the created notifications. It never
// returns an error.
func (e *Engine) Apply(ctx context.Context, deviceID uuid.UUID, readingID uuid.UUID, candidates []evaluator.Candidate) []*db.Notification {
	if len(candidates) == 0 {
		return nil
	}

	settings, err := e.settings.GetOrCreateSettings(ctx, deviceID)
	if err != nil {
		e.logger.Error("failed to load notification settings, dropping candidates",
			zap.Error(err),
			zap.String("device_id", deviceID.String()),
			zap.Int("candidates", len(candidates)),
		)
		return nil
	}

	var created []*db.Notification
	for _, candidate := range candidates {
		notification := e.apply(ctx, settings, deviceID, readingID, candidate)
		if notification != nil {
			created = append(created, notification)
		}
	}
	return created
}

func (e *Engine) apply(ctx context.Context, settings *db.NotificationSettings, deviceID, readingID uuid.UUID, candidate evaluator.Candidate) *db.Notification {
	log := e.logger.With(
		zap.String("device_id", deviceID.String()),
		zap.String("category", candidate.Category),
	)

	if !settings.Enabled {
		log.Debug("notifications disabled for device, candidate dropped")
		return nil
	}

	if settings.QuietHoursEnabled && InQuietHours(settings.QuietHoursStart, settings.QuietHoursEnd, e.now()) {
		log.Debug("quiet hours active, candidate dropped")
		return nil
	}

	if enabled, mapped := categoryEnabled(settings, candidate.Category); mapped && !enabled {
		log.Debug("notification category disabled, candidate dropped")
		return nil
	}

	count, err := e.notifications.CountNotificationsSince(ctx, deviceID, e.now().Add(-rateWindow))
	if err != nil {
		log.Error("failed to count recent notifications, candidate dropped", zap.Error(err))
		return nil
	}
	if count >= settings.MaxPerHour {
		log.Info("notification rate cap reached, candidate dropped",
			zap.Int("recent", count),
			zap.Int("cap", settings.MaxPerHour),
		)
		return nil
	}

	notification, err := e.notifications.InsertNotification(ctx, &db.Notification{
		DeviceID:  deviceID,
		ReadingID: readingID,
		Category:  candidate.Category,
		Message:   candidate.Message,
		Severity:  candidate.Severity,
	})
	if err != nil {
		log.Error("failed to persist notification", zap.Error(err))
		return nil
	}

	log.Info("notification created",
		zap.String("notification_id", notification.ID.String()),
		zap.String("severity", notification.Severity),
	)
	return notification
}

// categoryEnabled maps an alert category to its settings toggle. The
// second return is false for categories with no mapping; those are never
// suppressed by category toggle.
func categoryEnabled(s *db.NotificationSettings, category string) (enabled, mapped bool) {
	switch category {
	case "high_pm25", "pm25_alert", "critical_pm25":
		return s.Categories.PM25, true
	case "high_mq135", "mq135_alert":
		return s.Categories.MQ135, true
	case "high_mq2", "mq2_alert":
		return s.Categories.MQ2, true
	case "high_temperature", "temp_alert":
		return s.Categories.Temperature, true
	case "high_humidity", "humidity_alert":
		return s.Categories.Humidity, true
	case "device_offline", "device_online":
		return s.Categories.DeviceOffline, true
	default:
		return false, false
	}
}
