// Package mcp3425test provides in-memory buses to exercise the mcp3425
// driver without hardware.
package mcp3425test

import (
	"errors"
	"io"
	"math"
	"sync"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/mcp3425"
)

// Playback replays scripted responses. Every RequestFrom consumes the next
// entry of Responses; once they run out the device answers with nothing.
type Playback struct {
	// Addr, when not zero, is the only address the device answers to.
	Addr      uint16
	Responses [][]byte
	// Delay is the number of Available calls after each request that still
	// report no data.
	Delay int

	WriteErr   error
	RequestErr error

	// Writes and Requests record the traffic seen so far.
	Writes   [][]byte
	Requests int

	mu      sync.Mutex
	staging []byte
	target  uint16
	pending []byte
	delay   int
}

func (p *Playback) BeginTransmission(addr uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = addr
	p.staging = nil
}

func (p *Playback) Write(b byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staging = append(p.staging, b)
}

func (p *Playback) EndTransmission() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteErr != nil {
		return p.WriteErr
	}
	if p.Addr != 0 && p.target != p.Addr {
		return errNack
	}
	p.Writes = append(p.Writes, p.staging)
	p.staging = nil
	return nil
}

func (p *Playback) RequestFrom(addr uint16, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests++
	p.pending = nil
	if p.RequestErr != nil {
		return p.RequestErr
	}
	if p.Addr != 0 && addr != p.Addr {
		return errNack
	}
	if len(p.Responses) == 0 {
		return nil
	}
	r := p.Responses[0]
	p.Responses = p.Responses[1:]
	if len(r) > n {
		r = r[:n]
	}
	p.pending = append([]byte(nil), r...)
	p.delay = p.Delay
	return nil
}

func (p *Playback) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delay > 0 {
		p.delay--
		return 0
	}
	return len(p.pending)
}

func (p *Playback) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	b := p.pending[0]
	p.pending = p.pending[1:]
	return b, nil
}

var errNack = errors.New("mcp3425test: address not acknowledged")

// Sim behaves like a device sampling Signal. Codes are computed from the
// last configuration written, so resolution and gain changes take effect
// the way they do on hardware.
type Sim struct {
	Addr   uint16
	Signal func() float64
	// Busy is the number of reads answered as not ready after each
	// configuration write.
	Busy int

	mu      sync.Mutex
	config  byte
	staging []byte
	target  uint16
	pending []byte
	busy    int
}

// NewSim returns a simulated device at the default address, powered up in
// its reset configuration.
func NewSim(signal func() float64) *Sim {
	return &Sim{Addr: mcp3425.DefaultAddress, Signal: signal, config: 0x90}
}

func (s *Sim) BeginTransmission(addr uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = addr
	s.staging = nil
}

func (s *Sim) Write(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staging = append(s.staging, b)
}

func (s *Sim) EndTransmission() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target != s.Addr {
		return errNack
	}
	if len(s.staging) > 0 {
		s.config = s.staging[len(s.staging)-1] &^ 0x80
		s.busy = s.Busy
	}
	s.staging = nil
	return nil
}

func (s *Sim) RequestFrom(addr uint16, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr != s.Addr {
		s.pending = nil
		return errNack
	}
	status := s.config
	if s.busy > 0 {
		s.busy--
		status |= 0x80
	}
	raw := s.encode()
	r := []byte{byte(uint16(raw) >> 8), byte(raw), status}
	if n < len(r) {
		r = r[:n]
	}
	s.pending = r
	return nil
}

func (s *Sim) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Sim) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0, io.EOF
	}
	b := s.pending[0]
	s.pending = s.pending[1:]
	return b, nil
}

// Config returns the configuration the device is running with.
func (s *Sim) Config() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *Sim) encode() int16 {
	var v float64
	if s.Signal != nil {
		v = s.Signal()
	}
	bits := 12 + 2*int(s.config>>2&0x3)
	if bits > 16 {
		bits = 16
	}
	gain := float64(int(1) << (s.config & 0x3))
	full := float64(int(1) << (bits - 1))
	code := math.Round(v * gain / mcp3425.Vref * full)
	code = math.Max(-full, math.Min(full-1, code))
	return int16(code)
}

var (
	_ mcp3425.Bus = &Playback{}
	_ mcp3425.Bus = &Sim{}
)
