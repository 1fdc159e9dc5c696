package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel           zapcore.Level
	SerialPort         string       `mapstructure:"port"`
	Dir                string       `mapstructure:"dir"`
	PollIntervalMillis uint32       `mapstructure:"poll_interval_millis"`
	Simulate           bool         `mapstructure:"simulate"`
	HTTP               HTTPConfig   `mapstructure:"http"`
	MQTT               MQTTConfig   `mapstructure:"mqtt"`
	Influx             InfluxConfig `mapstructure:"influx"`
	CSVEnable          bool         `mapstructure:"csv_enable"`
	HTMLEnable         bool         `mapstructure:"html_enable"`
}

type HTTPConfig struct {
	Port    uint // 0 disables the status server
	HttpLog bool `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type InfluxConfig struct {
	Enable        bool
	URL           string `mapstructure:"url"`
	Token         string
	Org           string
	Bucket        string
	Measurement   string
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c InfluxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
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

// ParseLogLevel maps the log_level setting to a zap level. Unknown values default to info.
func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return zapcore.DebugLevel
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn":
		return zapcore.WarnLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Validate checks bounds and normalizes topics.
func (c *Config) Validate() error {
	if c.SerialPort == "" && !c.Simulate {
		return errors.New("config param port (serial device) must not be empty")
	}
	if c.Dir == "" {
		return errors.New("config param dir (output directory) must not be empty")
	}
	if c.PollIntervalMillis < 1000 {
		return errors.New("config param poll_interval_millis should be >= 1000")
	}
	if c.MQTT.Enable {
		baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
		if err != nil {
			return errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		c.MQTT.BaseTopic = baseTopic

		hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
		if err != nil {
			return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
		}
		c.MQTT.HADiscoveryTopic = hadBaseTopic
	}
	if c.Influx.Enable {
		if c.Influx.URL == "" || c.Influx.Bucket == "" {
			return errors.New("config params influx.url and influx.bucket are required when influx is enabled")
		}
		if c.Influx.TimeoutMillis == 0 {
			return errors.New("config param influx.timeout_millis should be > 0")
		}
	}
	return nil
}
