package util

import (
	"github.com/berfenger/iglogger/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel:           zap.DebugLevel,
		SerialPort:         "/dev/null",
		Dir:                ".",
		PollIntervalMillis: 60000,
		Simulate:           true,
		CSVEnable:          true,
		HTMLEnable:         true,
		HTTP: config.HTTPConfig{
			Port: 8080,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "iglogger",
			HADiscoveryTopic: "homeassistant",
		},
		Influx: config.InfluxConfig{
			URL:           "http://localhost:8086",
			Org:           "home",
			Bucket:        "solar",
			Measurement:   "inverter",
			TimeoutMillis: 2000,
		},
	}
}
