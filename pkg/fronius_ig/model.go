package fronius_ig

import (
	"fmt"
	"math"
)

// device classes
const (
	DeviceClassInterface byte = 0x00
	DeviceClassInverter  byte = 0x01
)

// interface card commands
const (
	CommandGetVersion      byte = 0x01
	CommandGetDeviceType   byte = 0x02
	CommandGetActiveDevice byte = 0x04
)

// inverter numeric commands
const (
	CommandPowerNow            byte = 0x10
	CommandEnergyTotal         byte = 0x11
	CommandEnergyDay           byte = 0x12
	CommandEnergyYear          byte = 0x13
	CommandACCurrentNow        byte = 0x14
	CommandACVoltageNow        byte = 0x15
	CommandACFrequencyNow      byte = 0x16
	CommandDCCurrentNow        byte = 0x17
	CommandDCVoltageNow        byte = 0x18
	CommandYieldDay            byte = 0x19
	CommandMaxPowerDay         byte = 0x1A
	CommandMaxACVoltageDay     byte = 0x1B
	CommandMinACVoltageDay     byte = 0x1C
	CommandMaxDCVoltageDay     byte = 0x1D
	CommandOperatingHoursDay   byte = 0x1E
	CommandYieldYear           byte = 0x1F
	CommandMaxPowerYear        byte = 0x20
	CommandMaxACVoltageYear    byte = 0x21
	CommandMinACVoltageYear    byte = 0x22
	CommandMaxDCVoltageYear    byte = 0x23
	CommandOperatingHoursYear  byte = 0x24
	CommandYieldTotal          byte = 0x25
	CommandMaxPowerTotal       byte = 0x26
	CommandMaxACVoltageTotal   byte = 0x27
	CommandMinACVoltageTotal   byte = 0x28
	CommandMaxDCVoltageTotal   byte = 0x29
	CommandOperatingHoursTotal byte = 0x2A
	CommandPhase1Current       byte = 0x2B
	CommandPhase2Current       byte = 0x2C
	CommandPhase3Current       byte = 0x2D
	CommandPhase1Voltage       byte = 0x2E
	CommandPhase2Voltage       byte = 0x2F
	CommandPhase3Voltage       byte = 0x30
	CommandAmbientTemperature  byte = 0x31
	CommandFrontLeftFanSpeed   byte = 0x32
	CommandFrontRightFanSpeed  byte = 0x33
	CommandRearLeftFanSpeed    byte = 0x34
	CommandRearRightFanSpeed   byte = 0x35
)

// Exponent bounds accepted for numeric readings. Values outside are rejected.
const (
	MinReadingExponent = -3
	MaxReadingExponent = 10
)

// Telemetry describes one numeric parameter polled every cycle.
type Telemetry struct {
	Command byte
	Name    string // column name, e.g. POWER_NOW
	Unit    string
}

// TelemetryCommands is the ordered list of parameters queried on every polling cycle.
var TelemetryCommands = []Telemetry{
	{CommandPowerNow, "POWER_NOW", "W"},
	{CommandEnergyTotal, "ENERGY_TOTAL", "Wh"},
	{CommandEnergyDay, "ENERGY_DAY", "Wh"},
	{CommandEnergyYear, "ENERGY_YEAR", "Wh"},
	{CommandACCurrentNow, "AC_CURRENT_NOW", "A"},
	{CommandACVoltageNow, "AC_VOLTAGE_NOW", "V"},
	{CommandACFrequencyNow, "AC_FREQUENCY_NOW", "Hz"},
	{CommandDCCurrentNow, "DC_CURRENT_NOW", "A"},
	{CommandDCVoltageNow, "DC_VOLTAGE_NOW", "V"},
	{CommandYieldDay, "YIELD_DAY", ""},
	{CommandMaxPowerDay, "MAX_POWER_DAY", "W"},
	{CommandMaxACVoltageDay, "MAX_AC_VOLTAGE_DAY", "V"},
	{CommandMinACVoltageDay, "MIN_AC_VOLTAGE_DAY", "V"},
	{CommandMaxDCVoltageDay, "MAX_DC_VOLTAGE_DAY", "V"},
	{CommandOperatingHoursDay, "OPERATING_HOURS_DAY", "h"},
	{CommandYieldYear, "YIELD_YEAR", ""},
	{CommandMaxPowerYear, "MAX_POWER_YEAR", "W"},
	{CommandMaxACVoltageYear, "MAX_AC_VOLTAGE_YEAR", "V"},
	{CommandMinACVoltageYear, "MIN_AC_VOLTAGE_YEAR", "V"},
	{CommandMaxDCVoltageYear, "MAX_DC_VOLTAGE_YEAR", "V"},
	{CommandOperatingHoursYear, "OPERATING_HOURS_YEAR", "h"},
	{CommandYieldTotal, "YIELD_TOTAL", ""},
	{CommandMaxPowerTotal, "MAX_POWER_TOTAL", "W"},
	{CommandMaxACVoltageTotal, "MAX_AC_VOLTAGE_TOTAL", "V"},
	{CommandMinACVoltageTotal, "MIN_AC_VOLTAGE_TOTAL", "V"},
	{CommandMaxDCVoltageTotal, "MAX_DC_VOLTAGE_TOTAL", "V"},
	{CommandOperatingHoursTotal, "OPERATING_HOURS_TOTAL", "h"},
	{CommandPhase1Current, "PHASE_1_CURRENT", "A"},
	{CommandPhase2Current, "PHASE_2_CURRENT", "A"},
	{CommandPhase3Current, "PHASE_3_CURRENT", "A"},
	{CommandPhase1Voltage, "PHASE_1_VOLTAGE", "V"},
	{CommandPhase2Voltage, "PHASE_2_VOLTAGE", "V"},
	{CommandPhase3Voltage, "PHASE_3_VOLTAGE", "V"},
	{CommandAmbientTemperature, "AMBIENT_TEMPERATURE", "°C"},
	{CommandFrontLeftFanSpeed, "FRONT_LEFT_FAN_SPEED", "rpm"},
	{CommandFrontRightFanSpeed, "FRONT_RIGHT_FAN_SPEED", "rpm"},
	{CommandRearLeftFanSpeed, "REAR_LEFT_FAN_SPEED", "rpm"},
	{CommandRearRightFanSpeed, "REAR_RIGHT_FAN_SPEED", "rpm"},
}

// TelemetryByCommand returns the telemetry definition for a numeric command.
func TelemetryByCommand(cmd byte) (Telemetry, bool) {
	for _, t := range TelemetryCommands {
		if t.Command == cmd {
			return t, true
		}
	}
	return Telemetry{}, false
}

// Version of the interface card firmware
type Version struct {
	Major   uint8
	Minor   uint8
	Release uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Release)
}

// NumericReading is the fixed-point representation used for every telemetry value.
type NumericReading struct {
	Mantissa int16
	Exponent int8
}

func (r NumericReading) Valid() bool {
	return r.Exponent >= MinReadingExponent && r.Exponent <= MaxReadingExponent
}

func (r NumericReading) Float64() float64 {
	if r.Exponent < 0 {
		// dividing keeps decimal values such as 50.01 exact to the last digit
		return float64(r.Mantissa) / math.Pow(10, float64(-r.Exponent))
	}
	return float64(r.Mantissa) * math.Pow(10, float64(r.Exponent))
}

// Bytes encodes the reading as a numeric response payload.
func (r NumericReading) Bytes() []byte {
	return []byte{byte(uint16(r.Mantissa) >> 8), byte(uint16(r.Mantissa)), byte(r.Exponent)}
}

// DecodeNumericReading parses a 3 byte numeric payload: big-endian int16 mantissa and int8 exponent.
func DecodeNumericReading(payload []byte) (NumericReading, error) {
	if len(payload) != 3 {
		return NumericReading{}, fmt.Errorf("%w: numeric payload has %d bytes, want 3", ErrInvalidShape, len(payload))
	}
	r := NumericReading{
		Mantissa: int16(uint16(payload[0])<<8 | uint16(payload[1])),
		Exponent: int8(payload[2]),
	}
	if !r.Valid() {
		return NumericReading{}, fmt.Errorf("%w: %d", ErrExponentOutOfRange, r.Exponent)
	}
	return r, nil
}

// DeviceType is the type code reported by an inverter.
type DeviceType uint8

const (
	DeviceTypeUnknownStr = "Unknown device"
)

var deviceModels = map[DeviceType]string{
	0xFE: "FRONIUS IG 15",
	0xFD: "FRONIUS IG 20",
	0xFC: "FRONIUS IG 30",
	0xFB: "FRONIUS IG 30 Dummy",
	0xFA: "FRONIUS IG 40",
	0xF9: "FRONIUS IG 60/IG 60 HV",
	0xF6: "FRONIUS IG 300",
	0xF5: "FRONIUS IG 400",
	0xF4: "FRONIUS IG 500",
	0xF3: "FRONIUS IG 60/IG 60 HV",
	0xEE: "FRONIUS IG 2000",
	0xED: "FRONIUS IG 3000",
	0xEB: "FRONIUS IG 4000",
	0xEA: "FRONIUS IG 5100",
	0xE5: "FRONIUS IG 2500-LV",
	0xE3: "FRONIUS IG 4500-LV",
}

// ModelName returns the human readable model of a device type code.
func (t DeviceType) ModelName() string {
	if name, ok := deviceModels[t]; ok {
		return name
	}
	return DeviceTypeUnknownStr
}

func (t DeviceType) String() string {
	return fmt.Sprintf("%s(0x%02X)", t.ModelName(), uint8(t))
}
