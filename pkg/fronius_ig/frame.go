package fronius_ig

import (
	"bytes"
	"errors"
	"fmt"
)

/*
Frame format of the Fronius IG interface card protocol:

Start			3		0x80 0x80 0x80
Length			1		payload length
Device			1		device class (0 interface card, 1 inverter)
Number			1		device index
Command			1
Payload			N		N = Length
Checksum		1		sum of Length..Payload, modulo 256
*/
const (
	frameHeaderSize = 7
	frameMinSize    = frameHeaderSize + 1
	MaxPayloadSize  = 0xFF
	MaxFrameSize    = frameMinSize + MaxPayloadSize
)

var StartMarker = []byte{0x80, 0x80, 0x80}

var (
	ErrPayloadTooLarge = errors.New("fronius_ig: payload exceeds 255 bytes")
	ErrBadChecksum     = errors.New("fronius_ig: frame checksum mismatch")
)

// Frame is a decoded request or response.
type Frame struct {
	DeviceClass byte
	DeviceIndex byte
	Command     byte
	Payload     []byte
}

// DecodeStatus tags the outcome of TryDecode.
type DecodeStatus int

const (
	DecodeIncomplete DecodeStatus = iota
	DecodeComplete
	DecodeInvalid
)

func (s DecodeStatus) String() string {
	switch s {
	case DecodeIncomplete:
		return "incomplete"
	case DecodeComplete:
		return "complete"
	case DecodeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// DecodeResult is Frame | Incomplete | Invalid.
// Consumed is only non-zero for a complete frame and includes any noise preceding the start marker.
type DecodeResult struct {
	Status   DecodeStatus
	Frame    Frame
	Consumed int
	Err      error
}

// Checksum sums the given bytes modulo 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// EncodeRequest builds a complete frame with length and checksum fields set.
func EncodeRequest(deviceClass, deviceIndex, command byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	frame := make([]byte, 0, frameMinSize+len(payload))
	frame = append(frame, StartMarker...)
	frame = append(frame, byte(len(payload)), deviceClass, deviceIndex, command)
	frame = append(frame, payload...)
	frame = append(frame, Checksum(frame[len(StartMarker):]))
	return frame, nil
}

// Bytes encodes the frame.
func (f Frame) Bytes() ([]byte, error) {
	return EncodeRequest(f.DeviceClass, f.DeviceIndex, f.Command, f.Payload)
}

// TryDecode looks for the first start marker in buf and decodes the frame that follows it.
// It never consumes bytes unless a complete, valid frame is returned.
func TryDecode(buf []byte) DecodeResult {
	start := bytes.Index(buf, StartMarker)
	if start < 0 {
		return DecodeResult{Status: DecodeIncomplete}
	}
	rest := buf[start:]
	if len(rest) < frameHeaderSize {
		return DecodeResult{Status: DecodeIncomplete}
	}

	length := int(rest[3])
	total := frameMinSize + length
	if len(rest) < total {
		return DecodeResult{Status: DecodeIncomplete}
	}

	// checksum covers Length..Payload
	body := rest[len(StartMarker) : total-1]
	received := rest[total-1]
	if computed := Checksum(body); computed != received {
		return DecodeResult{
			Status: DecodeInvalid,
			Err:    fmt.Errorf("%w: computed %02x != received %02x", ErrBadChecksum, computed, received),
		}
	}

	payload := make([]byte, length)
	copy(payload, rest[frameHeaderSize:frameHeaderSize+length])

	return DecodeResult{
		Status: DecodeComplete,
		Frame: Frame{
			DeviceClass: rest[4],
			DeviceIndex: rest[5],
			Command:     rest[6],
			Payload:     payload,
		},
		Consumed: start + total,
	}
}
