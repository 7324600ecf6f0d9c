package db

import (
	"time"

	"github.com/google/uuid"
)

// Device status values.
const (
	StatusOnline      = "online"
	StatusOffline     = "offline"
	StatusError       = "error"
	StatusMaintenance = "maintenance"
)

// Notification severities, lowest to highest.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityDanger   = "danger"
	SeverityCritical = "critical"
)

// Thresholds holds the per-metric alert ceilings for a device. A value of 0
// means the threshold is not enforced; this doubles as the "unset" default
// for humidity and temperature, so a deliberate zero threshold cannot be
// distinguished from a disabled one.
type Thresholds struct {
	MQ135       float64
	MQ2         float64
	Humidity    float64
	Temperature float64
}

// ThresholdPatch is a partial threshold update. Nil fields keep their
// current value.
type ThresholdPatch struct {
	MQ135       *float64
	MQ2         *float64
	Humidity    *float64
	Temperature *float64
}

// MetadataPatch is a partial device metadata update.
type MetadataPatch struct {
	FirmwareVersion *string
	Location        *string
	Description     *string
}

// Device represents a sensor device in the database.
type Device struct {
	ID                 uuid.UUID
	DeviceID           string
	Thresholds         Thresholds
	Status             string
	LastOnlineAt       *time.Time
	FirstOnlineAt      *time.Time
	TotalUptimeSeconds int64
	FirmwareVersion    *string
	Location           *string
	Description        *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Reading is one ingested telemetry record. Metric columns are nullable
// because sensors report independently; an absent metric stays nil, never 0.
type Reading struct {
	ID          uuid.UUID
	DeviceID    uuid.UUID
	PM25        *float64
	MQ135       *float64
	MQ2         *float64
	Temperature *float64
	Humidity    *float64
	RecordedAt  time.Time
	CreatedAt   time.Time
}

// CategoryToggles enables or disables notification delivery per alert
// category.
type CategoryToggles struct {
	PM25          bool
	MQ135         bool
	MQ2           bool
	Temperature   bool
	Humidity      bool
	DeviceOffline bool
}

// NotificationSettings holds per-device (optionally per-user) delivery
// policy. Created lazily with everything enabled.
type NotificationSettings struct {
	ID                uuid.UUID
	DeviceID          uuid.UUID
	UserID            *uuid.UUID
	Enabled           bool
	Categories        CategoryToggles
	QuietHoursEnabled bool
	QuietHoursStart   string // "HH:MM", 24h
	QuietHoursEnd     string // may be earlier than start (wraps midnight)
	MaxPerHour        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SettingsPatch is a partial notification settings update.
type SettingsPatch struct {
	Enabled           *bool
	PM25              *bool
	MQ135             *bool
	MQ2               *bool
	Temperature       *bool
	Humidity          *bool
	DeviceOffline     *bool
	QuietHoursEnabled *bool
	QuietHoursStart   *string
	QuietHoursEnd     *string
	MaxPerHour        *int
}

// Notification is a persisted, policy-approved alert.
type Notification struct {
	ID        uuid.UUID
	DeviceID  uuid.UUID
	ReadingID uuid.UUID
	Category  string
	Message   string
	Severity  string
	IsRead    bool
	CreatedAt time.Time
}
