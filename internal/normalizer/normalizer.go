package normalizer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sudior04/iot-backend/internal/apperr"
	"github.com/sudior04/iot-backend/tools/timeparser"
)

// Canonical metric names.
const (
	MetricPM25        = "pm25"
	MetricMQ135       = "mq135"
	MetricMQ2         = "mq2"
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
)

// AliasTable maps each canonical metric to the payload field names that
// have carried it across firmware versions, in resolution order. The first
// present, numeric-coercible alias wins.
type AliasTable map[string][]string

// DefaultAliases covers every field name the deployed firmware generations
// are known to emit.
func DefaultAliases() AliasTable {
	return AliasTable{
		MetricPM25:        {"pm25", "pm2_5", "dust"},
		MetricMQ135:       {"mq135", "gas135", "air_quality"},
		MetricMQ2:         {"mq2", "gas", "smoke"},
		MetricTemperature: {"temp", "temperature"},
		MetricHumidity:    {"humidity", "hum"},
	}
}

// Sample is a canonical sensor sample extracted from one raw payload.
// Absent metrics are nil, never zero.
type Sample struct {
	DeviceID    string
	PM25        *float64
	MQ135       *float64
	MQ2         *float64
	Temperature *float64
	Humidity    *float64
	RecordedAt  *time.Time
}

// Empty reports whether no recognized metric was present.
func (s *Sample) Empty() bool {
	return s.PM25 == nil && s.MQ135 == nil && s.MQ2 == nil &&
		s.Temperature == nil && s.Humidity == nil
}

// Normalizer maps raw payloads of variable shape into canonical samples
type Normalizer struct {
	aliases         AliasTable
	defaultDeviceID string
}

// NewNormalizer creates a normalizer with the given alias table. Devices
// that predate the deviceId field are attributed to defaultDeviceID.
func NewNormalizer(aliases AliasTable, defaultDeviceID string) *Normalizer {
	return &Normalizer{
		aliases:         aliases,
		defaultDeviceID: defaultDeviceID,
	}
}

// Normalize decodes a raw payload into a Sample. It returns
// apperr.ErrMalformedPayload when the body is not valid JSON. A payload
// that parses but carries no recognized metric is NOT an error: the sample
// comes back with Empty() == true and the caller decides whether to drop
// it (heartbeats) or keep it (event envelopes that need a reading row).
func (n *Normalizer) Normalize(payload []byte) (*Sample, map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperr.ErrMalformedPayload, err)
	}

	sample := &Sample{DeviceID: n.deviceID(raw)}
	sample.PM25 = n.resolve(raw, MetricPM25)
	sample.MQ135 = n.resolve(raw, MetricMQ135)
	sample.MQ2 = n.resolve(raw, MetricMQ2)
	sample.Temperature = n.resolve(raw, MetricTemperature)
	sample.Humidity = n.resolve(raw, MetricHumidity)

	if ts, ok := raw["timestamp"].(string); ok && ts != "" {
		if t, err := timeparser.ParseDeviceTimestamp(ts); err == nil {
			sample.RecordedAt = &t
		}
	}

	return sample, raw, nil
}

func (n *Normalizer) deviceID(raw map[string]interface{}) string {
	for _, key := range []string{"deviceId", "device_id", "id"} {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
	}
	return n.defaultDeviceID
}

// resolve walks the alias list for one canonical metric and returns the
// first numeric-coercible value, or nil when the metric is absent.
func (n *Normalizer) resolve(raw map[string]interface{}, metric string) *float64 {
	for _, alias := range n.aliases[metric] {
		v, ok := raw[alias]
		if !ok {
			continue
		}
		if f, ok := coerceNumeric(v); ok {
			return &f
		}
	}
	return nil
}

// coerceNumeric accepts JSON numbers and numeric strings. Empty strings,
// booleans and anything else map to "absent".
func coerceNumeric(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
