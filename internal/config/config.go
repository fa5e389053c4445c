package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/berfenger/luxnews2mqtt/pkg/lxp_modbus"
)

type Config struct {
	LogLevel  zapcore.Level
	Transport TransportConfig `mapstructure:"transport"`
	Cloud     CloudConfig     `mapstructure:"cloud"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`

	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type TransportConfig struct {
	// modbus_tcp, modbus_serial or wifi_dongle
	Type string
	Host string
	Port uint

	SerialPort string `mapstructure:"serial_port"`
	BaudRate   uint   `mapstructure:"baud_rate"`
	Parity     string
	StopBits   uint `mapstructure:"stop_bits"`

	UnitId uint `mapstructure:"unit_id"`

	InverterSerial string `mapstructure:"inverter_serial"`
	DongleSerial   string `mapstructure:"dongle_serial"`

	TimeoutMillis              uint32 `mapstructure:"timeout_millis"`
	ReadDelayAfterChangeMillis uint32 `mapstructure:"read_delay_after_change_millis"`
}

// ToTransportConfig maps the flat env-driven block onto the protocol config.
func (c TransportConfig) ToTransportConfig() lxp_modbus.TransportConfig {
	return lxp_modbus.TransportConfig{
		Type:           lxp_modbus.TransportType(c.Type),
		Host:           c.Host,
		Port:           c.Port,
		SerialPort:     c.SerialPort,
		BaudRate:       c.BaudRate,
		Parity:         c.Parity,
		StopBits:       c.StopBits,
		UnitID:         uint8(c.UnitId),
		InverterSerial: c.InverterSerial,
		DongleSerial:   c.DongleSerial,
		Timeout:        time.Duration(c.TimeoutMillis) * time.Millisecond,
		SettleDelay:    time.Duration(c.ReadDelayAfterChangeMillis) * time.Millisecond,
	}
}

// CloudConfig enables the cloud fallback channel. When Enable is false the
// bridge runs local-only.
type CloudConfig struct {
	Enable   bool
	BaseURL  string `mapstructure:"base_url"`
	Username string
	Password string

	LocalRetryIntervalSeconds uint32 `mapstructure:"local_retry_interval_seconds"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	// energy counters move slowly; they are read every Nth runtime tick
	EnergyPollIntervalTicks uint32 `mapstructure:"energy_poll_interval_ticks"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
