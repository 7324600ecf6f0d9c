package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudior04/iot-backend/internal/db"
	"github.com/sudior04/iot-backend/internal/repository"
)

// Integration tests against a real database. Apply scripts/schema.sql to
// the target database first, then run with TEST_DATABASE_URL set; skipped
// otherwise.

func testRepo(t *testing.T) *repository.Repository {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return repository.NewRepository(pool)
}

func testDeviceID() string {
	return fmt.Sprintf("test-%s", uuid.NewString())
}

func cleanupDevice(t *testing.T, repo *repository.Repository, deviceID string) {
	t.Helper()
	t.Cleanup(func() {
		// Cascades to readings, settings and notifications.
		_ = repo.DeleteDevice(context.Background(), deviceID)
	})
}

func defaultThresholds() db.Thresholds {
	return db.Thresholds{MQ135: 1000, MQ2: 1000, Humidity: 0, Temperature: 0}
}

func TestGetOrCreateDevice_Integration(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	deviceID := testDeviceID()
	cleanupDevice(t, repo, deviceID)

	device, err := repo.GetOrCreateDevice(ctx, deviceID, defaultThresholds())
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}

	if device.Status != db.StatusOffline {
		t.Errorf("Expected new device offline, got %s", device.Status)
	}
	if device.Thresholds.MQ135 != 1000 || device.Thresholds.Humidity != 0 {
		t.Errorf("Expected default thresholds, got %+v", device.Thresholds)
	}

	again, err := repo.GetOrCreateDevice(ctx, deviceID, defaultThresholds())
	if err != nil {
		t.Fatalf("Failed on second lookup: %v", err)
	}
	if again.ID != device.ID {
		t.Error("Expected second lookup to return the same device")
	}
}

func TestDeviceSessionLifecycle_Integration(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	deviceID := testDeviceID()
	cleanupDevice(t, repo, deviceID)

	if _, err := repo.GetOrCreateDevice(ctx, deviceID, defaultThresholds()); err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}

	online, err := repo.MarkDeviceOnline(ctx, deviceID)
	if err != nil {
		t.Fatalf("Failed to mark online: %v", err)
	}
	if online.Status != db.StatusOnline {
		t.Errorf("Expected online, got %s", online.Status)
	}
	if online.LastOnlineAt == nil || online.FirstOnlineAt == nil {
		t.Fatal("Expected online timestamps set")
	}
	firstOnline := *online.FirstOnlineAt

	// A second online report keeps the open session start.
	again, err := repo.MarkDeviceOnline(ctx, deviceID)
	if err != nil {
		t.Fatalf("Failed on repeated online: %v", err)
	}
	if !again.LastOnlineAt.Equal(*online.LastOnlineAt) {
		t.Error("Expected repeated online to keep last_online_at")
	}

	closed, err := repo.CloseSession(ctx, deviceID)
	if err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}
	if closed.Status != db.StatusOffline {
		t.Errorf("Expected offline after close, got %s", closed.Status)
	}
	if closed.TotalUptimeSeconds < 0 {
		t.Errorf("Expected non-negative uptime, got %d", closed.TotalUptimeSeconds)
	}
	if !closed.FirstOnlineAt.Equal(firstOnline) {
		t.Error("Expected first_online_at unchanged by close")
	}
	uptimeAfterClose := closed.TotalUptimeSeconds

	// Closing again without an intervening online transition is a no-op.
	reclosed, err := repo.CloseSession(ctx, deviceID)
	if err != nil {
		t.Fatalf("Failed on repeated close: %v", err)
	}
	if reclosed.TotalUptimeSeconds != uptimeAfterClose {
		t.Errorf("Expected idempotent close, uptime went %d -> %d",
			uptimeAfterClose, reclosed.TotalUptimeSeconds)
	}
}

func TestUpdateThresholds_PartialUpdate_Integration(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	deviceID := testDeviceID()
	cleanupDevice(t, repo, deviceID)

	if _, err := repo.GetOrCreateDevice(ctx, deviceID, defaultThresholds()); err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}

	newMQ135 := 800.0
	updated, err := repo.UpdateThresholds(ctx, deviceID, db.ThresholdPatch{MQ135: &newMQ135})
	if err != nil {
		t.Fatalf("Failed to update thresholds: %v", err)
	}

	if updated.Thresholds.MQ135 != 800 {
		t.Errorf("Expected MQ135 800, got %f", updated.Thresholds.MQ135)
	}
	if updated.Thresholds.MQ2 != 1000 {
		t.Errorf("Expected MQ2 untouched at 1000, got %f", updated.Thresholds.MQ2)
	}
}

func TestSettingsLazyCreate_Integration(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	deviceID := testDeviceID()
	cleanupDevice(t, repo, deviceID)

	device, err := repo.GetOrCreateDevice(ctx, deviceID, defaultThresholds())
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}

	settings, err := repo.GetOrCreateSettings(ctx, device.ID)
	if err != nil {
		t.Fatalf("Failed to create settings: %v", err)
	}

	if !settings.Enabled {
		t.Error("Expected settings enabled by default")
	}
	if !settings.Categories.PM25 || !settings.Categories.DeviceOffline {
		t.Error("Expected all categories enabled by default")
	}
	if settings.MaxPerHour != 10 {
		t.Errorf("Expected default cap of 10 per hour, got %d", settings.MaxPerHour)
	}

	again, err := repo.GetOrCreateSettings(ctx, device.ID)
	if err != nil {
		t.Fatalf("Failed on second lookup: %v", err)
	}
	if again.ID != settings.ID {
		t.Error("Expected second lookup to return the same settings row")
	}

	maxPerHour := 5
	quiet := true
	updated, err := repo.UpdateSettings(ctx, device.ID, db.SettingsPatch{
		MaxPerHour:        &maxPerHour,
		QuietHoursEnabled: &quiet,
	})
	if err != nil {
		t.Fatalf("Failed to update settings: %v", err)
	}
	if updated.MaxPerHour != 5 || !updated.QuietHoursEnabled {
		t.Errorf("Expected partial update applied, got %+v", updated)
	}
	if !updated.Categories.PM25 {
		t.Error("Expected untouched category toggles to survive partial update")
	}
}

func TestNotificationFlow_Integration(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	deviceID := testDeviceID()
	cleanupDevice(t, repo, deviceID)

	device, err := repo.GetOrCreateDevice(ctx, deviceID, defaultThresholds())
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}

	pm25 := 150.0
	reading, err := repo.InsertReading(ctx, &db.Reading{
		DeviceID:   device.ID,
		PM25:       &pm25,
		RecordedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to insert reading: %v", err)
	}

	notification, err := repo.InsertNotification(ctx, &db.Notification{
		DeviceID:  device.ID,
		ReadingID: reading.ID,
		Category:  "high_pm25",
		Message:   "PM2.5 high: 150.0 µg/m³",
		Severity:  db.SeverityWarning,
	})
	if err != nil {
		t.Fatalf("Failed to insert notification: %v", err)
	}
	if notification.IsRead {
		t.Error("Expected new notification unread")
	}

	count, err := repo.CountNotificationsSince(ctx, device.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Failed to count notifications: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 notification in window, got %d", count)
	}

	unread, err := repo.UnreadCount(ctx, device.ID)
	if err != nil {
		t.Fatalf("Failed to count unread: %v", err)
	}
	if unread != 1 {
		t.Errorf("Expected 1 unread, got %d", unread)
	}

	changed, err := repo.MarkAllNotificationsRead(ctx, device.ID)
	if err != nil {
		t.Fatalf("Failed to mark all read: %v", err)
	}
	if changed != 1 {
		t.Errorf("Expected 1 row changed, got %d", changed)
	}

	unread, err = repo.UnreadCount(ctx, device.ID)
	if err != nil {
		t.Fatalf("Failed to recount unread: %v", err)
	}
	if unread != 0 {
		t.Errorf("Expected 0 unread after mark all, got %d", unread)
	}
}

func TestReadingQueries_Integration(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	deviceID := testDeviceID()
	cleanupDevice(t, repo, deviceID)

	device, err := repo.GetOrCreateDevice(ctx, deviceID, defaultThresholds())
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}

	latest, err := repo.LatestReading(ctx, device.ID)
	if err != nil {
		t.Fatalf("Failed on empty latest query: %v", err)
	}
	if latest != nil {
		t.Error("Expected nil latest reading for a fresh device")
	}

	for _, v := range []float64{100, 110, 120} {
		value := v
		if _, err := repo.InsertReading(ctx, &db.Reading{
			DeviceID:   device.ID,
			MQ135:      &value,
			RecordedAt: time.Now(),
		}); err != nil {
			t.Fatalf("Failed to insert reading: %v", err)
		}
	}

	history, err := repo.ReadingHistory(ctx, device.ID, 10)
	if err != nil {
		t.Fatalf("Failed to query history: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("Expected 3 readings, got %d", len(history))
	}

	stats, err := repo.ReadingStatistics(ctx, device.ID, time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("Failed to compute statistics: %v", err)
	}
	if stats.Count != 3 {
		t.Errorf("Expected count 3, got %d", stats.Count)
	}
	if stats.MQ135.Avg == nil || *stats.MQ135.Avg != 110 {
		t.Errorf("Expected MQ135 avg 110, got %v", stats.MQ135.Avg)
	}
	if stats.PM25.Avg != nil {
		t.Error("Expected nil PM25 aggregate when no reading carries it")
	}
}
