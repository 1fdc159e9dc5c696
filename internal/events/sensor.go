package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/pkg/fronius_ig"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	SENSOR_ID_INVERTER_STATE      = "inverter_state"
	SENSOR_ID_INTERFACE_VERSION   = "interface_version"
	SENSOR_ID_ENERGY_DAY_RETAINED = "energy_day_retained"
	SENSOR_ID_POWER_AVERAGE       = "power_average_15m"
	STATE_CLASS_MEASUREMENT       = "measurement"
	STATE_CLASS_TOTAL_INCREASING  = "total_increasing"
	DEVICE_CLASS_CURRENT          = "current"
	DEVICE_CLASS_DURATION         = "duration"
	DEVICE_CLASS_ENERGY           = "energy"
	DEVICE_CLASS_FREQUENCY        = "frequency"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_TEMPERATURE      = "temperature"
	DEVICE_CLASS_VOLTAGE          = "voltage"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	SENSOR_TYPE_SENSOR            = "sensor"
	SENSOR_TYPE_BINARY            = "binary_sensor"
	INVERTER_MANUFACTURER         = "Fronius"
	INVERTER_STATE_IDLE           = "idle"
	INVERTER_STATE_RUNNING        = "running"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("iglogger_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "IGLogger",
		Model:        "IGLogger",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("IGLogger %s", md5HashShort(baseTopic)),
	}
}

// InverterDevice identifies the inverter behind the interface card. The card reports no serial number,
// so the id is derived from the bridge topic and the inverter index.
func InverterDevice(baseTopic string, identity domain.DeviceIdentity) Device {
	hash := md5HashShort(fmt.Sprintf("%s_%d", baseTopic, identity.ActiveIndex))
	model := identity.ModelName
	if model == "" {
		model = fronius_ig.DeviceTypeUnknownStr
	}
	return Device{
		Id:           fmt.Sprintf("ig_inverter_%s", hash),
		Version:      identity.Version,
		Manufacturer: INVERTER_MANUFACTURER,
		Model:        model,
		Name:         fmt.Sprintf("%s %s", model, hash),
		ViaDevice:    BridgeDevice(baseTopic).Id,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// TelemetrySensorId is the sensor id of a telemetry value, e.g. power_now.
func TelemetrySensorId(t fronius_ig.Telemetry) string {
	return strings.ToLower(t.Name)
}

func InverterSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Inverter state
	sensors = append(sensors, GenericSensor{
		Device:     inverterDevice,
		Id:         SENSOR_ID_INVERTER_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Inverter state",
		Icon:       "mdi:solar-power",
		UniqueId:   uniqueId(inverterDevice.Id, SENSOR_ID_INVERTER_STATE),
	})

	// Interface card version
	sensors = append(sensors, GenericSensor{
		Device:         inverterDevice,
		Id:             SENSOR_ID_INTERFACE_VERSION,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Interface card version",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(inverterDevice.Id, SENSOR_ID_INTERFACE_VERSION),
	})

	// Retained day energy
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_ENERGY_DAY_RETAINED,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy today",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "Wh",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_ENERGY_DAY_RETAINED),
	})

	// 15 minute power average
	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_POWER_AVERAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Power 15 min average",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_POWER_AVERAGE),
	})

	// one sensor per telemetry command
	for _, t := range fronius_ig.TelemetryCommands {
		id := TelemetrySensorId(t)
		sensor := GenericSensor{
			Device:            inverterDevice,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              telemetryDisplayName(t.Name),
			UnitOfMeasurement: t.Unit,
			UniqueId:          uniqueId(inverterDevice.Id, id),
		}
		sensor.DeviceClass, sensor.StateClass = classesForUnit(t.Unit)
		// day, year and total statistics are rarely needed
		if !strings.HasSuffix(t.Name, "_NOW") && t.Command != fronius_ig.CommandEnergyTotal {
			sensor.EnabledByDefault = optionalBool(false)
		}
		sensors = append(sensors, sensor)
	}

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func classesForUnit(unit string) (deviceClass, stateClass string) {
	switch unit {
	case "W":
		return DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT
	case "Wh":
		return DEVICE_CLASS_ENERGY, STATE_CLASS_TOTAL_INCREASING
	case "A":
		return DEVICE_CLASS_CURRENT, STATE_CLASS_MEASUREMENT
	case "V":
		return DEVICE_CLASS_VOLTAGE, STATE_CLASS_MEASUREMENT
	case "Hz":
		return DEVICE_CLASS_FREQUENCY, STATE_CLASS_MEASUREMENT
	case "°C":
		return DEVICE_CLASS_TEMPERATURE, STATE_CLASS_MEASUREMENT
	case "h":
		return DEVICE_CLASS_DURATION, STATE_CLASS_TOTAL_INCREASING
	default:
		return "", STATE_CLASS_MEASUREMENT
	}
}

// telemetryDisplayName turns AC_VOLTAGE_NOW into "AC voltage now".
func telemetryDisplayName(name string) string {
	words := strings.Split(strings.ToLower(name), "_")
	for i, w := range words {
		if w == "ac" || w == "dc" {
			words[i] = strings.ToUpper(w)
		}
	}
	s := strings.Join(words, " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
