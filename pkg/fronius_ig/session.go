package fronius_ig

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrInvalidShape       = errors.New("fronius_ig: unexpected response payload")
	ErrExponentOutOfRange = errors.New("fronius_ig: reading exponent out of range")
	ErrUnexpectedResponse = errors.New("fronius_ig: response does not match request")
)

// IsFatal reports whether err leaves the serial channel unusable.
func IsFatal(err error) bool {
	return errors.Is(err, ErrWriteFailed) || errors.Is(err, ErrOpenFailed)
}

// Exchanger sends one request frame and returns the matching response. *Transport implements it.
type Exchanger interface {
	Exchange(request Frame) (Frame, error)
}

// Session speaks the interface card request/response vocabulary, one request per call.
type Session struct {
	transport Exchanger
	logger    *zap.Logger
}

func NewSession(transport Exchanger, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		transport: transport,
		logger:    logger,
	}
}

func (s *Session) request(deviceClass, deviceIndex, command byte) (Frame, error) {
	resp, err := s.transport.Exchange(Frame{
		DeviceClass: deviceClass,
		DeviceIndex: deviceIndex,
		Command:     command,
	})
	if err != nil {
		return Frame{}, err
	}
	if resp.Command != command {
		return Frame{}, fmt.Errorf("%w: sent command 0x%02X, got 0x%02X", ErrUnexpectedResponse, command, resp.Command)
	}
	return resp, nil
}

// GetVersion returns the interface card software version.
func (s *Session) GetVersion() (Version, error) {
	resp, err := s.request(DeviceClassInterface, 0, CommandGetVersion)
	if err != nil {
		return Version{}, fmt.Errorf("get version: %w", err)
	}
	if len(resp.Payload) < 3 {
		return Version{}, fmt.Errorf("get version: %w: %d bytes", ErrInvalidShape, len(resp.Payload))
	}
	return Version{
		Major:   resp.Payload[0],
		Minor:   resp.Payload[1],
		Release: resp.Payload[2],
	}, nil
}

// GetActiveDevice returns the index of the active inverter.
// active is false when no inverter is running, which is normal at night.
func (s *Session) GetActiveDevice() (index byte, active bool, err error) {
	resp, err := s.request(DeviceClassInterface, 0, CommandGetActiveDevice)
	if err != nil {
		return 0, false, fmt.Errorf("get active device: %w", err)
	}
	if len(resp.Payload) == 0 {
		return 0, false, nil
	}
	return resp.Payload[0], true, nil
}

// GetDeviceType returns the type code of an inverter.
func (s *Session) GetDeviceType(index byte) (DeviceType, error) {
	resp, err := s.request(DeviceClassInverter, index, CommandGetDeviceType)
	if err != nil {
		return 0, fmt.Errorf("get device type: %w", err)
	}
	if len(resp.Payload) != 1 {
		return 0, fmt.Errorf("get device type: %w: %d bytes, want 1", ErrInvalidShape, len(resp.Payload))
	}
	return DeviceType(resp.Payload[0]), nil
}

// GetNumericParameter queries one telemetry value of an inverter.
func (s *Session) GetNumericParameter(index byte, command byte) (NumericReading, error) {
	resp, err := s.request(DeviceClassInverter, index, command)
	if err != nil {
		return NumericReading{}, fmt.Errorf("get numeric 0x%02X: %w", command, err)
	}
	reading, err := DecodeNumericReading(resp.Payload)
	if err != nil {
		return NumericReading{}, fmt.Errorf("get numeric 0x%02X: %w", command, err)
	}
	s.logger.Debug("numeric reading",
		zap.Uint8("command", command),
		zap.Int16("mantissa", reading.Mantissa),
		zap.Int8("exponent", reading.Exponent))
	return reading, nil
}
