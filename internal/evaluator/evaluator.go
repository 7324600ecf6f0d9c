package evaluator

import (
	"fmt"

	"github.com/sudior04/iot-backend/internal/db"
)

// Alert categories produced by threshold evaluation.
const (
	CategoryHighPM25        = "high_pm25"
	CategoryHighMQ135       = "high_mq135"
	CategoryHighMQ2         = "high_mq2"
	CategoryHighTemperature = "high_temperature"
	CategoryHighHumidity    = "high_humidity"
	CategoryDeviceOffline   = "device_offline"
)

// Particulate matter uses a fixed graduated scale independent of the
// device's configured thresholds: readings above PM25AlertFloor alert as
// warnings, and above PM25DangerCutoff as critical. Only PM2.5 gets this
// graduation; the other metrics alert flat against their configured
// threshold. That asymmetry is a product decision, not an oversight.
const (
	PM25AlertFloor   = 100.0
	PM25DangerCutoff = 200.0
)

// Candidate is an alert condition detected from one reading. It is not yet
// a notification; delivery is decided by the policy engine.
type Candidate struct {
	Category string
	Message  string
	Severity string
}

// Evaluate compares a reading against the device thresholds and returns
// zero or more candidates, one per exceeded metric. It is a pure function:
// identical inputs always yield the identical candidate list.
//
// A threshold of 0 means "not enforced" and never fires, whatever the
// reading value. This conflates "unset" with a deliberate zero threshold
// (see the defaults in the device registry); kept for compatibility with
// the deployed firmware configuration protocol.
func Evaluate(t db.Thresholds, r *db.Reading) []Candidate {
	var out []Candidate

	if r.PM25 != nil && *r.PM25 > PM25AlertFloor {
		severity := db.SeverityWarning
		if *r.PM25 > PM25DangerCutoff {
			severity = db.SeverityCritical
		}
		out = append(out, Candidate{
			Category: CategoryHighPM25,
			Message:  fmt.Sprintf("PM2.5 high: %.1f µg/m³", *r.PM25),
			Severity: severity,
		})
	}

	if r.MQ135 != nil && t.MQ135 > 0 && *r.MQ135 > t.MQ135 {
		out = append(out, Candidate{
			Category: CategoryHighMQ135,
			Message:  fmt.Sprintf("MQ135 above threshold: %.1f > %.1f", *r.MQ135, t.MQ135),
			Severity: db.SeverityWarning,
		})
	}

	if r.MQ2 != nil && t.MQ2 > 0 && *r.MQ2 > t.MQ2 {
		out = append(out, Candidate{
			Category: CategoryHighMQ2,
			Message:  fmt.Sprintf("MQ2 above threshold: %.1f > %.1f", *r.MQ2, t.MQ2),
			Severity: db.SeverityWarning,
		})
	}

	if r.Temperature != nil && t.Temperature > 0 && *r.Temperature > t.Temperature {
		out = append(out, Candidate{
			Category: CategoryHighTemperature,
			Message:  fmt.Sprintf("temperature high: %.1f°C", *r.Temperature),
			Severity: db.SeverityWarning,
		})
	}

	if r.Humidity != nil && t.Humidity > 0 && *r.Humidity > t.Humidity {
		out = append(out, Candidate{
			Category: CategoryHighHumidity,
			Message:  fmt.Sprintf("humidity high: %.1f%%", *r.Humidity),
			Severity: db.SeverityInfo,
		})
	}

	return out
}

// SeverityForEvent maps a device-originated event type to a severity.
// Unknown events default to warning.
func SeverityForEvent(event string) string {
	switch event {
	case "fire_detected", "gas_leak", "critical_pm25":
		return db.SeverityCritical
	case "high_pm25", "high_mq135", "high_mq2", "high_temperature":
		return db.SeverityWarning
	case "high_humidity", "device_online", "threshold_changed":
		return db.SeverityInfo
	default:
		return db.SeverityWarning
	}
}
