package normalizer_test

import (
	"errors"
	"testing"

	"github.com/sudior04/iot-backend/internal/apperr"
	"github.com/sudior04/iot-backend/internal/normalizer"
)

const testDefaultDeviceID = "esp32"

func newTestNormalizer() *normalizer.Normalizer {
	return normalizer.NewNormalizer(normalizer.DefaultAliases(), testDefaultDeviceID)
}

func TestNormalize_CanonicalFields(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"deviceId":"sensor-01","pm25":42.5,"mq135":310,"mq2":120,"temp":28.5,"humidity":65}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if sample.DeviceID != "sensor-01" {
		t.Errorf("Expected device 'sensor-01', got '%s'", sample.DeviceID)
	}
	if sample.PM25 == nil || *sample.PM25 != 42.5 {
		t.Errorf("Expected pm25 42.5, got %v", sample.PM25)
	}
	if sample.MQ135 == nil || *sample.MQ135 != 310 {
		t.Errorf("Expected mq135 310, got %v", sample.MQ135)
	}
	if sample.Temperature == nil || *sample.Temperature != 28.5 {
		t.Errorf("Expected temperature 28.5, got %v", sample.Temperature)
	}
}

func TestNormalize_AliasFields(t *testing.T) {
	n := newTestNormalizer()

	// Older firmware reports dust, gas and hum.
	payload := []byte(`{"dust":18.2,"gas":95,"hum":48}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if sample.PM25 == nil || *sample.PM25 != 18.2 {
		t.Errorf("Expected pm25 18.2 via dust alias, got %v", sample.PM25)
	}
	if sample.MQ2 == nil || *sample.MQ2 != 95 {
		t.Errorf("Expected mq2 95 via gas alias, got %v", sample.MQ2)
	}
	if sample.Humidity == nil || *sample.Humidity != 48 {
		t.Errorf("Expected humidity 48 via hum alias, got %v", sample.Humidity)
	}
}

func TestNormalize_NumericStrings(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"pm25":"42.5","temp":" 28.5 "}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if sample.PM25 == nil || *sample.PM25 != 42.5 {
		t.Errorf("Expected pm25 42.5 from string, got %v", sample.PM25)
	}
	if sample.Temperature == nil || *sample.Temperature != 28.5 {
		t.Errorf("Expected temperature 28.5 from padded string, got %v", sample.Temperature)
	}
}

func TestNormalize_AbsentMetricStaysNil(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"pm25":10}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if sample.MQ135 != nil {
		t.Errorf("Expected absent mq135 to be nil, got %v", *sample.MQ135)
	}
	if sample.Humidity != nil {
		t.Errorf("Expected absent humidity to be nil, got %v", *sample.Humidity)
	}
}

func TestNormalize_NonNumericValuesTreatedAsAbsent(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"pm25":"n/a","mq2":true,"humidity":""}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if !sample.Empty() {
		t.Error("Expected empty sample when no value is numeric-coercible")
	}
}

func TestNormalize_MissingDeviceIDFallsBack(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"pm25":10}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if sample.DeviceID != testDefaultDeviceID {
		t.Errorf("Expected default device '%s', got '%s'", testDefaultDeviceID, sample.DeviceID)
	}
}

func TestNormalize_SnakeCaseDeviceID(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"device_id":"sensor-02","pm25":10}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if sample.DeviceID != "sensor-02" {
		t.Errorf("Expected device 'sensor-02', got '%s'", sample.DeviceID)
	}
}

func TestNormalize_MalformedJSON(t *testing.T) {
	n := newTestNormalizer()

	_, _, err := n.Normalize([]byte(`{"pm25":`))
	if err == nil {
		t.Fatal("Expected error for malformed JSON")
	}
	if !errors.Is(err, apperr.ErrMalformedPayload) {
		t.Errorf("Expected ErrMalformedPayload, got %v", err)
	}
}

func TestNormalize_EmptyObjectIsEmptySampleNotError(t *testing.T) {
	n := newTestNormalizer()

	sample, _, err := n.Normalize([]byte(`{}`))
	if err != nil {
		t.Fatalf("Expected no error for metric-free payload, got: %v", err)
	}
	if !sample.Empty() {
		t.Error("Expected Empty() == true for payload with no metrics")
	}
}

func TestNormalize_TimestampParsed(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"pm25":10,"timestamp":"2026-08-15T10:30:00Z"}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if sample.RecordedAt == nil {
		t.Fatal("Expected RecordedAt to be set from timestamp field")
	}
	if sample.RecordedAt.Hour() != 10 || sample.RecordedAt.Minute() != 30 {
		t.Errorf("Expected 10:30, got %v", sample.RecordedAt)
	}
}

func TestNormalize_UnparseableTimestampIgnored(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"pm25":10,"timestamp":"soon"}`)

	sample, _, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if sample.RecordedAt != nil {
		t.Errorf("Expected nil RecordedAt for unparseable timestamp, got %v", sample.RecordedAt)
	}
}

func TestNormalize_RawMapReturned(t *testing.T) {
	n := newTestNormalizer()

	payload := []byte(`{"deviceId":"sensor-01","event":"fire_detected","message":"smoke rising"}`)

	_, raw, err := n.Normalize(payload)
	if err != nil {
		t.Fatalf("Expected successful normalize, got error: %v", err)
	}

	if event, _ := raw["event"].(string); event != "fire_detected" {
		t.Errorf("Expected raw event 'fire_detected', got '%v'", raw["event"])
	}
	if msg, _ := raw["message"].(string); msg != "smoke rising" {
		t.Errorf("Expected raw message preserved, got '%v'", raw["message"])
	}
}
