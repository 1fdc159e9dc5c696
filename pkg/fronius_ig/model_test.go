package fronius_ig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeNumericReading(t *testing.T) {

	assert := assert.New(t)

	r, err := DecodeNumericReading([]byte{0x05, 0xDC, 0xFE})
	assert.NoError(err)
	assert.EqualValues(1500, r.Mantissa)
	assert.EqualValues(-2, r.Exponent)
	assert.InDelta(15.0, r.Float64(), 1e-9, "1500 * 10^-2")

	r, err = DecodeNumericReading([]byte{0xFF, 0x38, 0x00})
	assert.NoError(err)
	assert.InDelta(-200.0, r.Float64(), 1e-9, "negative mantissa")

	r, err = DecodeNumericReading([]byte{0x00, 0x02, 0x0A})
	assert.NoError(err)
	assert.InDelta(2e10, r.Float64(), 1, "max exponent")
}

func TestDecodeNumericReadingExponentOutOfRange(t *testing.T) {

	assert := assert.New(t)

	for _, mantissa := range [][2]byte{{0x05, 0xDC}, {0x00, 0x00}, {0xFF, 0xFF}} {
		_, err := DecodeNumericReading([]byte{mantissa[0], mantissa[1], 11})
		assert.ErrorIs(err, ErrExponentOutOfRange, "exponent 11")

		_, err = DecodeNumericReading([]byte{mantissa[0], mantissa[1], 0xFC})
		assert.ErrorIs(err, ErrExponentOutOfRange, "exponent -4")
	}
}

func TestDecodeNumericReadingShape(t *testing.T) {

	assert := assert.New(t)

	_, err := DecodeNumericReading([]byte{0x05, 0xDC})
	assert.ErrorIs(err, ErrInvalidShape)
	_, err = DecodeNumericReading([]byte{0x05, 0xDC, 0x00, 0x00})
	assert.ErrorIs(err, ErrInvalidShape)
}

func TestNumericReadingBytes(t *testing.T) {

	r := NumericReading{Mantissa: -1500, Exponent: -3}
	decoded, err := DecodeNumericReading(r.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestDeviceTypeModelName(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("FRONIUS IG 30", DeviceType(0xFC).ModelName())
	assert.Equal("FRONIUS IG 4500-LV", DeviceType(0xE3).ModelName())
	assert.Equal(DeviceTypeUnknownStr, DeviceType(0xFF).ModelName())
	assert.Equal(DeviceTypeUnknownStr, DeviceType(0x01).ModelName())
}

func TestTelemetryCommands(t *testing.T) {

	assert := assert.New(t)

	assert.Len(TelemetryCommands, 38)
	seen := map[byte]bool{}
	for i, tc := range TelemetryCommands {
		assert.Equal(CommandPowerNow+byte(i), tc.Command, "table is ordered by command code")
		assert.False(seen[tc.Command])
		seen[tc.Command] = true
	}

	energy, ok := TelemetryByCommand(CommandEnergyDay)
	assert.True(ok)
	assert.Equal("ENERGY_DAY", energy.Name)

	_, ok = TelemetryByCommand(CommandGetVersion)
	assert.False(ok)
}
