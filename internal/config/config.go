package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	Database    DatabaseConfig
	MQTT        MQTTConfig
	Topics      Topics
	RabbitMQ    RabbitMQConfig
	Push        PushConfig
	Devices     DeviceConfig
	Commands    CommandConfig
	Alerts      AlertConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// MQTTConfig holds broker connection settings
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Namespace string
	QoS       byte
}

// Topics holds the broker topic layout derived from the namespace prefix.
// Inbound topics carry sensor data, device-originated events and status
// reports; the cmd/* topics carry outbound device commands.
type Topics struct {
	Data               string
	Event              string
	Status             string
	CmdGetData         string
	CmdChangeThreshold string
	CmdAlarmOff        string
	CmdChangeRate      string
	Wildcard           string
}

// RabbitMQConfig holds the optional downstream event relay settings. The
// relay is disabled when URL is empty.
type RabbitMQConfig struct {
	URL                    string
	Exchange               string
	ReadingRoutingKey      string
	NotificationRoutingKey string
}

// PushConfig holds the websocket push endpoint settings
type PushConfig struct {
	Addr string
	Path string
}

// DeviceConfig holds device defaults applied when a device first contacts
// the backend. Zero thresholds mean "not enforced".
type DeviceConfig struct {
	DefaultID                   string
	DefaultMQ135Threshold       float64
	DefaultMQ2Threshold         float64
	DefaultHumidityThreshold    float64
	DefaultTemperatureThreshold float64
}

// CommandConfig bounds command parameters before dispatch
type CommandConfig struct {
	MinPublishIntervalSeconds int
	MaxPublishIntervalSeconds int
}

// AlertConfig holds alerting policy parameters
type AlertConfig struct {
	SuggestionLookbackDays int
	SuggestionMinSamples   int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	ns := getEnv("MQTT_TOPIC_NAMESPACE", "air-quality")

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "air-quality-worker"),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		MQTT: MQTTConfig{
			BrokerURL: getEnv("MQTT_BROKER_URL", ""),
			ClientID:  getEnv("MQTT_CLIENT_ID", "air-quality-worker"),
			Username:  getEnv("MQTT_USERNAME", ""),
			Password:  getEnv("MQTT_PASSWORD", ""),
			Namespace: ns,
			QoS:       byte(getEnvAsInt("MQTT_QOS", 1)),
		},
		Topics: Topics{
			Data:               ns + "/data",
			Event:              ns + "/event",
			Status:             ns + "/status",
			CmdGetData:         ns + "/cmd/get-data",
			CmdChangeThreshold: ns + "/cmd/change-threshold",
			CmdAlarmOff:        ns + "/cmd/alarm-off",
			CmdChangeRate:      ns + "/cmd/change-rate",
			Wildcard:           ns + "/#",
		},
		RabbitMQ: RabbitMQConfig{
			URL:                    getEnv("RABBITMQ_URL", ""),
			Exchange:               getEnv("RABBITMQ_EVENTS_EXCHANGE", "air-quality.events.exchange"),
			ReadingRoutingKey:      getEnv("RABBITMQ_READING_ROUTING_KEY", "reading.accepted"),
			NotificationRoutingKey: getEnv("RABBITMQ_NOTIFICATION_ROUTING_KEY", "notification.created"),
		},
		Push: PushConfig{
			Addr: getEnv("PUSH_LISTEN_ADDR", ":8082"),
			Path: getEnv("PUSH_WS_PATH", "/ws"),
		},
		Devices: DeviceConfig{
			DefaultID:                   getEnv("DEVICE_DEFAULT_ID", "esp32"),
			DefaultMQ135Threshold:       getEnvAsFloat("DEVICE_DEFAULT_MQ135_THRESHOLD", 1000),
			DefaultMQ2Threshold:         getEnvAsFloat("DEVICE_DEFAULT_MQ2_THRESHOLD", 1000),
			DefaultHumidityThreshold:    getEnvAsFloat("DEVICE_DEFAULT_HUMIDITY_THRESHOLD", 0),
			DefaultTemperatureThreshold: getEnvAsFloat("DEVICE_DEFAULT_TEMP_THRESHOLD", 0),
		},
		Commands: CommandConfig{
			MinPublishIntervalSeconds: getEnvAsInt("COMMAND_MIN_PUBLISH_INTERVAL_SECONDS", 2),
			MaxPublishIntervalSeconds: getEnvAsInt("COMMAND_MAX_PUBLISH_INTERVAL_SECONDS", 600),
		},
		Alerts: AlertConfig{
			SuggestionLookbackDays: getEnvAsInt("THRESHOLD_SUGGESTION_LOOKBACK_DAYS", 7),
			SuggestionMinSamples:   getEnvAsInt("THRESHOLD_SUGGESTION_MIN_SAMPLES", 10),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.MQTT.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT_BROKER_URL is required but not set in environment variables")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
