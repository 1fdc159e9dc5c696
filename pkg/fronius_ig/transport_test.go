package fronius_ig

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseBytes(t *testing.T, f Frame) []byte {
	raw, err := f.Bytes()
	require.NoError(t, err)
	return raw
}

func TestReadFramePartialReads(t *testing.T) {

	assert := assert.New(t)

	raw := responseBytes(t, Frame{DeviceClass: 1, DeviceIndex: 1, Command: CommandPowerNow, Payload: []byte{0x05, 0xDC, 0xFE}})
	port := &ScriptedPort{}
	for i := 0; i < len(raw); i += 2 {
		end := min(i+2, len(raw))
		port.Chunks = append(port.Chunks, raw[i:end])
	}

	tr := NewTransport(port, nil)
	frame, err := tr.ReadFrame()
	assert.NoError(err)
	assert.Equal(CommandPowerNow, frame.Command)
	assert.Equal([]byte{0x05, 0xDC, 0xFE}, frame.Payload)
}

func TestReadFrameTimeout(t *testing.T) {

	tr := NewTransport(&ScriptedPort{}, nil)
	_, err := tr.ReadFrame()
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.False(t, IsFatal(err))
}

func TestReadFrameTruncatedResponseTimesOut(t *testing.T) {

	raw := responseBytes(t, Frame{DeviceClass: 1, DeviceIndex: 1, Command: CommandPowerNow, Payload: []byte{0x05, 0xDC, 0xFE}})
	tr := NewTransport(&ScriptedPort{Chunks: [][]byte{raw[:len(raw)-2]}}, nil)

	_, err := tr.ReadFrame()
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestReadFrameBadChecksum(t *testing.T) {

	assert := assert.New(t)

	raw := responseBytes(t, Frame{DeviceClass: 1, DeviceIndex: 1, Command: CommandPowerNow, Payload: []byte{0x05, 0xDC, 0xFE}})
	raw[len(raw)-1] ^= 0x01
	tr := NewTransport(&ScriptedPort{Chunks: [][]byte{raw}}, nil)

	_, err := tr.ReadFrame()
	assert.ErrorIs(err, ErrNoResponse, "checksum failure is reported as no response")
	assert.ErrorIs(err, ErrBadChecksum)
	assert.Empty(tr.buf, "buffer is discarded")
}

func TestReadFrameDiscardsLongNoise(t *testing.T) {

	assert := assert.New(t)

	raw := responseBytes(t, Frame{DeviceClass: 0, DeviceIndex: 0, Command: CommandGetActiveDevice, Payload: []byte{0x02}})
	tr := NewTransport(&ScriptedPort{Chunks: [][]byte{make([]byte, 1000), raw}}, nil)

	frame, err := tr.ReadFrame()
	assert.NoError(err)
	assert.Equal([]byte{0x02}, frame.Payload)
	assert.Empty(tr.buf)
}

type noisyPort struct {
	ScriptedPort
}

func (p *noisyPort) Read(b []byte) (int, error) {
	b[0] = 0x55
	return 1, nil
}

func TestReadFrameNeverBlocksOnEndlessNoise(t *testing.T) {

	tr := NewTransport(&noisyPort{}, nil)
	clock := time.Unix(0, 0)
	tr.now = func() time.Time {
		clock = clock.Add(100 * time.Millisecond)
		return clock
	}

	_, err := tr.ReadFrame()
	assert.ErrorIs(t, err, ErrNoResponse)
}

type failingPort struct {
	ScriptedPort
	short bool
}

func (p *failingPort) Write(b []byte) (int, error) {
	if p.short {
		return len(b) / 2, nil
	}
	return 0, errors.New("input/output error")
}

func TestWriteFailures(t *testing.T) {

	assert := assert.New(t)

	frame, _ := EncodeRequest(DeviceClassInterface, 0, CommandGetVersion, nil)

	_, err := NewTransport(&failingPort{short: true}, nil).Write(frame)
	assert.ErrorIs(err, ErrWriteFailed, "short write")
	assert.True(IsFatal(err))

	_, err = NewTransport(&failingPort{}, nil).Write(frame)
	assert.ErrorIs(err, ErrWriteFailed, "write error")
	assert.True(IsFatal(err))
}

func TestExchange(t *testing.T) {

	assert := assert.New(t)

	resp := responseBytes(t, Frame{DeviceClass: 0, DeviceIndex: 0, Command: CommandGetVersion, Payload: []byte{1, 2, 3}})
	port := &ScriptedPort{Chunks: [][]byte{resp}}
	tr := NewTransport(port, nil)
	tr.buf = append(tr.buf, 0x80, 0x80)

	frame, err := tr.Exchange(Frame{DeviceClass: DeviceClassInterface, Command: CommandGetVersion})
	assert.NoError(err)
	assert.Equal([]byte{1, 2, 3}, frame.Payload)
	assert.Equal(1, port.Flushed)
	assert.Equal([][]byte{{0x80, 0x80, 0x80, 0x00, 0x00, 0x00, 0x01, 0x01}}, port.Written)
}

func TestClosedTransport(t *testing.T) {

	assert := assert.New(t)

	tr := NewTransport(&ScriptedPort{}, nil)
	assert.NoError(tr.Close())
	assert.NoError(tr.Close())

	_, err := tr.Exchange(Frame{Command: CommandGetVersion})
	assert.True(IsFatal(err))
}
