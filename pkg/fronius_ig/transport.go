package fronius_ig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

const (
	BaudRate = 19200
	// ResponseTimeout is the maximum silence tolerated while waiting for response bytes.
	ResponseTimeout = 1 * time.Second
	// maxExchangeTime bounds a single read even if the line keeps delivering garbage.
	maxExchangeTime = 5 * ResponseTimeout
	readChunkSize   = 64
)

var (
	ErrOpenFailed  = errors.New("fronius_ig: could not open serial port")
	ErrWriteFailed = errors.New("fronius_ig: serial write failed")
	ErrNoResponse  = errors.New("fronius_ig: no response")
)

// Port is the serial channel used by Transport. *serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// OpenSerialPort opens the serial device in raw mode at 19200 8N1 without flow control.
// Reads return no data after ResponseTimeout of silence.
func OpenSerialPort(name string) (*serial.Port, error) {
	portConfig := &serial.Config{
		Name:        name,
		Baud:        BaudRate,
		ReadTimeout: ResponseTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	port, err := serial.OpenPort(portConfig)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrOpenFailed, name, err)
	}
	return port, nil
}

// Transport owns the serial port and the accumulation buffer of incoming bytes.
type Transport struct {
	port   Port
	buf    []byte
	chunk  []byte
	now    func() time.Time
	logger *zap.Logger
}

func NewTransport(port Port, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		port:   port,
		buf:    make([]byte, 0, MaxFrameSize),
		chunk:  make([]byte, readChunkSize),
		now:    time.Now,
		logger: logger,
	}
}

func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// Write sends a whole frame. Any error or short write is reported as ErrWriteFailed.
func (t *Transport) Write(frame []byte) (int, error) {
	if t.port == nil {
		return 0, fmt.Errorf("%w: port not open", ErrWriteFailed)
	}
	n, err := t.port.Write(frame)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if n != len(frame) {
		return n, fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(frame))
	}
	return n, nil
}

// ReadFrame accumulates input until a complete frame is decoded.
// Silence on the line and checksum failures both yield ErrNoResponse.
func (t *Transport) ReadFrame() (Frame, error) {
	if t.port == nil {
		return Frame{}, fmt.Errorf("%w: port not open", ErrNoResponse)
	}
	deadline := t.now().Add(maxExchangeTime)
	for {
		res := TryDecode(t.buf)
		switch res.Status {
		case DecodeComplete:
			t.buf = append(t.buf[:0], t.buf[res.Consumed:]...)
			return res.Frame, nil
		case DecodeInvalid:
			t.logger.Warn("bad message", zap.Error(res.Err), zap.Binary("buffer", t.buf))
			t.buf = t.buf[:0]
			return Frame{}, fmt.Errorf("%w: %w", ErrNoResponse, res.Err)
		}
		t.trimNoise()

		if t.now().After(deadline) {
			t.buf = t.buf[:0]
			return Frame{}, fmt.Errorf("%w: exchange took longer than %s", ErrNoResponse, maxExchangeTime)
		}

		n, err := t.port.Read(t.chunk)
		if n > 0 {
			t.buf = append(t.buf, t.chunk[:n]...)
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			t.logger.Warn("serial read failed", zap.Error(err))
			return Frame{}, fmt.Errorf("%w: %w", ErrNoResponse, err)
		}
		return Frame{}, fmt.Errorf("%w: timed out after %s", ErrNoResponse, ResponseTimeout)
	}
}

// trimNoise drops bytes that can never belong to a frame so the buffer stays bounded.
func (t *Transport) trimNoise() {
	if len(t.buf) <= MaxFrameSize {
		return
	}
	start := bytes.Index(t.buf, StartMarker)
	if start < 0 {
		// keep a possible partial marker at the tail
		start = len(t.buf) - (len(StartMarker) - 1)
	}
	t.buf = append(t.buf[:0], t.buf[start:]...)
}

// Exchange flushes stale input, sends the request and waits for one response frame.
func (t *Transport) Exchange(request Frame) (Frame, error) {
	raw, err := request.Bytes()
	if err != nil {
		return Frame{}, err
	}
	if t.port != nil {
		if err := t.port.Flush(); err != nil {
			t.logger.Debug("flush failed", zap.Error(err))
		}
	}
	t.buf = t.buf[:0]
	if _, err := t.Write(raw); err != nil {
		return Frame{}, err
	}
	return t.ReadFrame()
}
