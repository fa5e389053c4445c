package util

import (
	"go.uber.org/zap"

	"github.com/berfenger/luxnews2mqtt/internal/config"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Transport: config.TransportConfig{
			Type:   "modbus_tcp",
			Host:   "-.-.-.-",
			Port:   502,
			UnitId: 1,
		},
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis:      5000,
			EnergyPollIntervalTicks: 6,
		},
		Port: 8080,
	}
}
