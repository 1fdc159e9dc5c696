package fronius_ig

import (
	"errors"
	"sync"
)

// SimulatedInverter is an in-memory Port that answers interface card requests.
// It is used by tests and by the --simulate mode of the logger.
type SimulatedInverter struct {
	mu sync.Mutex

	Version  Version
	Active   bool
	Index    byte
	Type     DeviceType
	Readings map[byte]NumericReading // commands without a reading stay silent

	ChunkSize   int           // max bytes returned per Read, 0 means everything pending
	Corrupt     map[byte]bool // commands answered with a bad checksum
	Silent      bool          // never answer
	ShortWrite  bool
	WriteErr    error
	VersionLost bool // interface card does not answer version requests

	Requests []Frame

	pending []byte
	closed  bool
}

func NewSimulatedInverter() *SimulatedInverter {
	readings := make(map[byte]NumericReading, len(TelemetryCommands))
	for i, t := range TelemetryCommands {
		readings[t.Command] = NumericReading{Mantissa: int16(100 + i), Exponent: 0}
	}
	readings[CommandPowerNow] = NumericReading{Mantissa: 1500, Exponent: 0}
	readings[CommandEnergyDay] = NumericReading{Mantissa: 1200, Exponent: 1}
	readings[CommandACFrequencyNow] = NumericReading{Mantissa: 5001, Exponent: -2}
	return &SimulatedInverter{
		Version:  Version{Major: 2, Minor: 3, Release: 4},
		Active:   true,
		Index:    1,
		Type:     0xFC,
		Readings: readings,
		Corrupt:  map[byte]bool{},
	}
}

func (s *SimulatedInverter) SetReading(cmd byte, value NumericReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Readings[cmd] = value
}

func (s *SimulatedInverter) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Active = active
}

// NumericRequests counts requests for telemetry commands.
func (s *SimulatedInverter) NumericRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.Requests {
		if _, ok := TelemetryByCommand(r.Command); ok {
			count++
		}
	}
	return count
}

func (s *SimulatedInverter) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = nil
}

func (s *SimulatedInverter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("simulated port closed")
	}
	if s.WriteErr != nil {
		return 0, s.WriteErr
	}
	if s.ShortWrite {
		return len(p) - 1, nil
	}
	res := TryDecode(p)
	if res.Status != DecodeComplete {
		return len(p), nil
	}
	s.Requests = append(s.Requests, res.Frame)
	if s.Silent {
		return len(p), nil
	}
	if resp, ok := s.respond(res.Frame); ok {
		raw, _ := resp.Bytes()
		if s.Corrupt[res.Frame.Command] {
			raw[len(raw)-1] ^= 0xFF
		}
		s.pending = append(s.pending, raw...)
	}
	return len(p), nil
}

func (s *SimulatedInverter) respond(req Frame) (Frame, bool) {
	resp := Frame{
		DeviceClass: req.DeviceClass,
		DeviceIndex: req.DeviceIndex,
		Command:     req.Command,
	}
	switch req.Command {
	case CommandGetVersion:
		if s.VersionLost {
			return Frame{}, false
		}
		resp.Payload = []byte{s.Version.Major, s.Version.Minor, s.Version.Release}
	case CommandGetActiveDevice:
		if s.Active {
			resp.Payload = []byte{s.Index}
		}
	case CommandGetDeviceType:
		if !s.Active || req.DeviceIndex != s.Index {
			return Frame{}, false
		}
		resp.Payload = []byte{byte(s.Type)}
	default:
		reading, ok := s.Readings[req.Command]
		if !ok || !s.Active || req.DeviceIndex != s.Index {
			return Frame{}, false
		}
		resp.Payload = reading.Bytes()
	}
	return resp, true
}

// Read returns pending response bytes. With nothing pending it behaves like a serial read timeout.
func (s *SimulatedInverter) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("simulated port closed")
	}
	if len(s.pending) == 0 {
		return 0, nil
	}
	n := len(p)
	if s.ChunkSize > 0 && s.ChunkSize < n {
		n = s.ChunkSize
	}
	n = copy(p[:n], s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *SimulatedInverter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	return nil
}

func (s *SimulatedInverter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ScriptedPort replays fixed input chunks, one per Read, and records writes.
type ScriptedPort struct {
	Chunks  [][]byte
	Written [][]byte
	Flushed int
}

func (p *ScriptedPort) Read(b []byte) (int, error) {
	if len(p.Chunks) == 0 {
		return 0, nil
	}
	n := copy(b, p.Chunks[0])
	if n < len(p.Chunks[0]) {
		p.Chunks[0] = p.Chunks[0][n:]
	} else {
		p.Chunks = p.Chunks[1:]
	}
	return n, nil
}

func (p *ScriptedPort) Write(b []byte) (int, error) {
	p.Written = append(p.Written, append([]byte(nil), b...))
	return len(b), nil
}

func (p *ScriptedPort) Flush() error {
	p.Flushed++
	return nil
}

func (p *ScriptedPort) Close() error {
	return nil
}
