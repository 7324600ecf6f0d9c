package policy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudior04/iot-backend/internal/db"
	"github.com/sudior04/iot-backend/internal/evaluator"
	"github.com/sudior04/iot-backend/internal/policy"
)

type fakeSettingsStore struct {
	settings *db.NotificationSettings
	err      error
}

func (f *fakeSettingsStore) GetOrCreateSettings(ctx context.Context, deviceID uuid.UUID) (*db.NotificationSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.settings, nil
}

type fakeNotificationStore struct {
	inserted  []*db.Notification
	createdAt []time.Time
	insertErr error
	countErr  error
	clock     func() time.Time
}

func (f *fakeNotificationStore) InsertNotification(ctx context.Context, n *db.Notification) (*db.Notification, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	stored := *n
	stored.ID = uuid.New()
	stored.CreatedAt = f.clock()
	f.inserted = append(f.inserted, &stored)
	f.createdAt = append(f.createdAt, stored.CreatedAt)
	return &stored, nil
}

func (f *fakeNotificationStore) CountNotificationsSince(ctx context.Context, deviceID uuid.UUID, since time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, ts := range f.createdAt {
		if !ts.Before(since) {
			count++
		}
	}
	return count, nil
}

func defaultSettings() *db.NotificationSettings {
	return &db.NotificationSettings{
		Enabled: true,
		Categories: db.CategoryToggles{
			PM25:          true,
			MQ135:         true,
			MQ2:           true,
			Temperature:   true,
			Humidity:      true,
			DeviceOffline: true,
		},
		MaxPerHour: 10,
	}
}

func pm25Candidate() evaluator.Candidate {
	return evaluator.Candidate{
		Category: evaluator.CategoryHighPM25,
		Message:  "PM2.5 high: 150.0 µg/m³",
		Severity: db.SeverityWarning,
	}
}

func newTestEngine(settings *fakeSettingsStore, notifications *fakeNotificationStore, now time.Time) (*policy.Engine, *time.Time) {
	clock := now
	if notifications.clock == nil {
		notifications.clock = func() time.Time { return clock }
	}
	return policy.NewEngineWithClock(settings, notifications, func() time.Time { return clock }, zap.NewNop()), &clock
}

func TestApply_CreatesNotification(t *testing.T) {
	store := &fakeNotificationStore{}
	engine, _ := newTestEngine(&fakeSettingsStore{settings: defaultSettings()}, store, at(12, 0))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if len(created) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(created))
	}
	if created[0].Category != evaluator.CategoryHighPM25 {
		t.Errorf("Expected pm25 category, got %s", created[0].Category)
	}
	if len(store.inserted) != 1 {
		t.Errorf("Expected 1 persisted notification, got %d", len(store.inserted))
	}
}

func TestApply_NoCandidatesNoWork(t *testing.T) {
	settings := &fakeSettingsStore{err: errors.New("should not be called")}
	engine, _ := newTestEngine(settings, &fakeNotificationStore{}, at(12, 0))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), nil)

	if created != nil {
		t.Errorf("Expected nil for empty candidate list, got %d notifications", len(created))
	}
}

func TestApply_DisabledDeviceDropsAll(t *testing.T) {
	settings := defaultSettings()
	settings.Enabled = false
	engine, _ := newTestEngine(&fakeSettingsStore{settings: settings}, &fakeNotificationStore{}, at(12, 0))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if len(created) != 0 {
		t.Errorf("Expected no notifications for disabled device, got %d", len(created))
	}
}

func TestApply_QuietHoursSuppress(t *testing.T) {
	settings := defaultSettings()
	settings.QuietHoursEnabled = true
	settings.QuietHoursStart = "22:00"
	settings.QuietHoursEnd = "07:00"

	engine, _ := newTestEngine(&fakeSettingsStore{settings: settings}, &fakeNotificationStore{}, at(23, 30))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if len(created) != 0 {
		t.Errorf("Expected quiet hours to suppress, got %d notifications", len(created))
	}
}

func TestApply_OutsideQuietHoursDelivers(t *testing.T) {
	settings := defaultSettings()
	settings.QuietHoursEnabled = true
	settings.QuietHoursStart = "22:00"
	settings.QuietHoursEnd = "07:00"

	engine, _ := newTestEngine(&fakeSettingsStore{settings: settings}, &fakeNotificationStore{}, at(12, 0))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if len(created) != 1 {
		t.Errorf("Expected delivery outside quiet hours, got %d notifications", len(created))
	}
}

func TestApply_QuietHoursConfiguredButDisabled(t *testing.T) {
	settings := defaultSettings()
	settings.QuietHoursEnabled = false
	settings.QuietHoursStart = "22:00"
	settings.QuietHoursEnd = "07:00"

	engine, _ := newTestEngine(&fakeSettingsStore{settings: settings}, &fakeNotificationStore{}, at(23, 30))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if len(created) != 1 {
		t.Errorf("Expected delivery when quiet hours toggle is off, got %d notifications", len(created))
	}
}

func TestApply_CategoryToggleSuppresses(t *testing.T) {
	settings := defaultSettings()
	settings.Categories.PM25 = false

	engine, _ := newTestEngine(&fakeSettingsStore{settings: settings}, &fakeNotificationStore{}, at(12, 0))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if len(created) != 0 {
		t.Errorf("Expected disabled category to suppress, got %d notifications", len(created))
	}
}

func TestApply_UnmappedCategoryNotSuppressedByToggles(t *testing.T) {
	settings := defaultSettings()
	settings.Categories = db.CategoryToggles{} // everything off

	engine, _ := newTestEngine(&fakeSettingsStore{settings: settings}, &fakeNotificationStore{}, at(12, 0))

	candidate := evaluator.Candidate{
		Category: "fire_detected",
		Message:  "device reported event: fire_detected",
		Severity: db.SeverityCritical,
	}
	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{candidate})

	if len(created) != 1 {
		t.Errorf("Expected unmapped category to bypass toggles, got %d notifications", len(created))
	}
}

func TestApply_RateCapSuppresses(t *testing.T) {
	settings := defaultSettings()
	settings.MaxPerHour = 3

	store := &fakeNotificationStore{}
	engine, _ := newTestEngine(&fakeSettingsStore{settings: settings}, store, at(12, 0))

	deviceID := uuid.New()
	for i := 0; i < 5; i++ {
		engine.Apply(context.Background(), deviceID, uuid.New(), []evaluator.Candidate{pm25Candidate()})
	}

	if len(store.inserted) != 3 {
		t.Errorf("Expected cap of 3 notifications, got %d", len(store.inserted))
	}
}

func TestApply_RateCapAgesOut(t *testing.T) {
	settings := defaultSettings()
	settings.MaxPerHour = 3

	store := &fakeNotificationStore{}
	engine, clock := newTestEngine(&fakeSettingsStore{settings: settings}, store, at(12, 0))

	deviceID := uuid.New()
	for i := 0; i < 3; i++ {
		engine.Apply(context.Background(), deviceID, uuid.New(), []evaluator.Candidate{pm25Candidate()})
	}

	// Still inside the window: suppressed.
	*clock = at(12, 30)
	engine.Apply(context.Background(), deviceID, uuid.New(), []evaluator.Candidate{pm25Candidate()})
	if len(store.inserted) != 3 {
		t.Fatalf("Expected suppression inside the window, got %d notifications", len(store.inserted))
	}

	// 61 minutes after the burst the window has drained.
	*clock = at(13, 1)
	created := engine.Apply(context.Background(), deviceID, uuid.New(), []evaluator.Candidate{pm25Candidate()})
	if len(created) != 1 {
		t.Errorf("Expected delivery after window drained, got %d", len(created))
	}
	if len(store.inserted) != 4 {
		t.Errorf("Expected 4 total notifications, got %d", len(store.inserted))
	}
}

func TestApply_SettingsErrorDropsAll(t *testing.T) {
	store := &fakeNotificationStore{}
	engine, _ := newTestEngine(&fakeSettingsStore{err: errors.New("db down")}, store, at(12, 0))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if created != nil {
		t.Errorf("Expected nil on settings load failure, got %d notifications", len(created))
	}
	if len(store.inserted) != 0 {
		t.Errorf("Expected no persisted notifications, got %d", len(store.inserted))
	}
}

func TestApply_InsertErrorIsSwallowed(t *testing.T) {
	store := &fakeNotificationStore{insertErr: errors.New("insert failed")}
	engine, _ := newTestEngine(&fakeSettingsStore{settings: defaultSettings()}, store, at(12, 0))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if len(created) != 0 {
		t.Errorf("Expected no notifications on insert failure, got %d", len(created))
	}
}

func TestApply_CountErrorDropsCandidate(t *testing.T) {
	store := &fakeNotificationStore{countErr: errors.New("count failed")}
	engine, _ := newTestEngine(&fakeSettingsStore{settings: defaultSettings()}, store, at(12, 0))

	created := engine.Apply(context.Background(), uuid.New(), uuid.New(), []evaluator.Candidate{pm25Candidate()})

	if len(created) != 0 {
		t.Errorf("Expected candidate dropped on count failure, got %d notifications", len(created))
	}
}
