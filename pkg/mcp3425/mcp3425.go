// Package mcp3425 controls a Microchip MCP3425 single channel delta-sigma
// analog to digital converter over I2C.
//
// The device has one configuration register and answers every read with
// two data bytes followed by an echo of that register, whose top bit is
// cleared once a new conversion result is available.
//
// Datasheet:
//
//	https://ww1.microchip.com/downloads/en/DeviceDoc/22072b.pdf
package mcp3425

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the bus address with A2, A1 and A0 tied to ground.
const DefaultAddress uint16 = 0x68

var (
	ErrInvalidResolution = errors.New("mcp3425: invalid resolution")
	ErrInvalidGain       = errors.New("mcp3425: invalid gain")
	ErrTimeout           = errors.New("mcp3425: timeout reading data")
	ErrNotReady          = errors.New("mcp3425: conversion not ready")
	ErrShortRead         = errors.New("mcp3425: short read")
)

// Opts holds the device configuration. Zero fields take the value from
// DefaultOpts.
type Opts struct {
	Addr uint16
	Gain Gain
	// OneShot starts a conversion for every read instead of letting the
	// device convert continuously.
	OneShot bool
	// PollInterval and PollAttempts bound the wait for a full response
	// after a read request.
	PollInterval time.Duration
	PollAttempts int
	// MaxRetries caps how many times a read is reissued while the device
	// reports the conversion as not ready. NoRetry disables reissuing.
	MaxRetries  int
	SettleDelay time.Duration
	// Strict makes Init reject an unsupported resolution instead of
	// falling back to DefaultResolution.
	Strict bool
	Logger *zap.Logger
}

// NoRetry as Opts.MaxRetries fails a read on the first not-ready status.
const NoRetry = -1

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Addr:         DefaultAddress,
	Gain:         Gain1,
	PollInterval: 500 * time.Microsecond,
	PollAttempts: 50,
	MaxRetries:   10,
	SettleDelay:  50 * time.Millisecond,
}

// Measurement is one decoded conversion result.
type Measurement struct {
	Raw        int16
	Code       int16
	Volts      float64
	Resolution Resolution
}

// Dev is a handle to an MCP3425.
type Dev struct {
	mu       sync.Mutex
	bus      Bus
	name     string
	opts     Opts
	log      *zap.Logger
	sleep    func(time.Duration)
	gainBits byte

	// set and config always change together, under mu.
	set    setting
	config byte
}

// New returns a handle to a device reachable through bus. The device is not
// touched until Init is called; until then the handle assumes
// DefaultResolution.
func New(bus Bus, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = withDefaults(*opts)
	}
	gb, ok := o.Gain.bits()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGain, int(o.Gain))
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	d := &Dev{
		bus:      bus,
		name:     fmt.Sprintf("MCP3425{0x%02x}", o.Addr),
		opts:     o,
		log:      o.Logger.With(zap.String("device", "mcp3425"), zap.Uint16("addr", o.Addr)),
		sleep:    time.Sleep,
		gainBits: gb,
	}
	d.set = settings[DefaultResolution]
	d.config = d.set.configByte(o.OneShot, gb)
	return d, nil
}

// NewI2C returns a handle to a device on a periph.io I2C bus.
func NewI2C(b i2c.Bus, opts *Opts) (*Dev, error) {
	d, err := New(NewI2CBus(b), opts)
	if err != nil {
		return nil, err
	}
	d.name = fmt.Sprintf("MCP3425{%s, 0x%02x}", b, d.opts.Addr)
	return d, nil
}

func withDefaults(o Opts) Opts {
	if o.Addr == 0 {
		o.Addr = DefaultOpts.Addr
	}
	if o.Gain == 0 {
		o.Gain = DefaultOpts.Gain
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultOpts.PollInterval
	}
	if o.PollAttempts == 0 {
		o.PollAttempts = DefaultOpts.PollAttempts
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultOpts.MaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultOpts.SettleDelay
	}
	return o
}

// Init selects the resolution and writes the configuration to the device.
//
// The zero Resolution selects DefaultResolution. An unsupported resolution
// is logged and replaced by DefaultResolution, unless Opts.Strict is set, in
// which case ErrInvalidResolution is returned and nothing changes. A bus
// error is logged and returned, but the new resolution is kept and the
// settle delay still runs.
func (d *Dev) Init(r Resolution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r == 0 {
		r = DefaultResolution
	}
	s, ok := settings[r]
	if !ok {
		if d.opts.Strict {
			return fmt.Errorf("%w: %d", ErrInvalidResolution, int(r))
		}
		d.log.Warn("invalid resolution, falling back to default",
			zap.Int("resolution", int(r)), zap.Stringer("fallback", DefaultResolution))
		s = settings[DefaultResolution]
	}
	d.set = s
	d.config = s.configByte(d.opts.OneShot, d.gainBits)

	err := d.writeConfig()
	if err != nil {
		d.log.Error("initialization error", zap.Error(err))
	}
	d.sleep(d.opts.SettleDelay)
	if err != nil {
		return err
	}
	d.log.Info("initialized",
		zap.Stringer("resolution", s.res),
		zap.Int("gain", int(d.opts.Gain)),
		zap.Bool("one_shot", d.opts.OneShot),
		zap.String("config", fmt.Sprintf("0x%02x", d.config)))
	return nil
}

// ReadRaw returns the 16 bit sample as sent by the device. In 12 and 14 bit
// modes the upper bits repeat the sign; use Code or ReadVoltage to decode.
//
// ErrTimeout is returned when the response never becomes fully available
// and ErrNotReady when the device still reports a pending conversion after
// Opts.MaxRetries reissued requests. The value is 0 in both cases.
func (d *Dev) ReadRaw() (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRaw()
}

// ReadVoltage reads one sample and converts it to volts.
func (d *Dev) ReadVoltage() (float64, error) {
	m, err := d.Measure()
	if err != nil {
		return 0, err
	}
	return m.Volts, nil
}

// Measure reads one sample and returns it with its decoded forms.
func (d *Dev) Measure() (Measurement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.readRaw()
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{
		Raw:        raw,
		Code:       d.set.code(raw),
		Volts:      d.set.volts(raw, d.opts.Gain),
		Resolution: d.set.res,
	}, nil
}

// ReadConfig returns the configuration byte echoed by the device. It does
// not wait for data; ErrShortRead is returned when the response is
// incomplete.
func (d *Dev) ReadConfig() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.bus.RequestFrom(d.opts.Addr, 3); err != nil {
		return 0, fmt.Errorf("mcp3425: request config: %w", err)
	}
	if n := d.bus.Available(); n < 3 {
		return 0, fmt.Errorf("%w: %d of 3 bytes", ErrShortRead, n)
	}
	b, err := d.readN()
	if err != nil {
		return 0, err
	}
	return b[2], nil
}

// Resolution returns the active resolution.
func (d *Dev) Resolution() Resolution {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set.res
}

// Config returns the configuration byte last written, or the one that Init
// would write by default.
func (d *Dev) Config() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// LSB returns the size of one code step in volts at unity gain.
func (d *Dev) LSB() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set.lsb
}

// MaxCode returns the largest positive code at the active resolution.
func (d *Dev) MaxCode() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set.maxCode
}

// SampleRate returns the conversion rate in samples per second.
func (d *Dev) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set.sps
}

// ConversionTime is the length of one conversion at the active resolution.
func (d *Dev) ConversionTime() time.Duration {
	return time.Second / time.Duration(d.SampleRate())
}

// Read implements analog.PinADC.
func (d *Dev) Read() (analog.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.readRaw()
	if err != nil {
		return analog.Sample{}, err
	}
	return d.sample(int32(d.set.code(raw))), nil
}

// Range implements analog.PinADC.
func (d *Dev) Range() (analog.Sample, analog.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sample(-d.set.maxCode - 1), d.sample(d.set.maxCode)
}

// Name implements pin.Pin.
func (d *Dev) Name() string {
	return "MCP3425"
}

// Number implements pin.Pin.
func (d *Dev) Number() int {
	return 0
}

// Function implements pin.Pin.
func (d *Dev) Function() string {
	return "ADC"
}

func (d *Dev) String() string {
	return d.name
}

// Halt puts the device in one-shot standby, where it draws no conversion
// current until the next Init.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bus.BeginTransmission(d.opts.Addr)
	d.bus.Write(d.set.configByte(true, d.gainBits) &^ cfgNotReady)
	if err := d.bus.EndTransmission(); err != nil {
		return fmt.Errorf("mcp3425: halt: %w", err)
	}
	return nil
}

func (d *Dev) sample(code int32) analog.Sample {
	v := float64(code) * Vref / d.set.divisor / float64(d.opts.Gain)
	return analog.Sample{
		V:   physic.ElectricPotential(math.Round(v * float64(physic.Volt))),
		Raw: code,
	}
}

func (d *Dev) writeConfig() error {
	d.bus.BeginTransmission(d.opts.Addr)
	d.bus.Write(d.config)
	if err := d.bus.EndTransmission(); err != nil {
		return fmt.Errorf("mcp3425: write config: %w", err)
	}
	return nil
}

func (d *Dev) readRaw() (int16, error) {
	if d.opts.OneShot {
		if err := d.writeConfig(); err != nil {
			return 0, err
		}
	}
	for retry := 0; ; retry++ {
		b, err := d.request()
		if err != nil {
			return 0, err
		}
		if b[2]&cfgNotReady == 0 {
			return int16(uint16(b[0])<<8 | uint16(b[1])), nil
		}
		if retry >= d.opts.MaxRetries {
			d.log.Warn("conversion not ready", zap.Int("retries", retry))
			return 0, fmt.Errorf("%w after %d retries", ErrNotReady, retry)
		}
		d.sleep(d.set.retryWait)
	}
}

// request asks for a full response and waits, bounded, until it is
// available.
func (d *Dev) request() ([3]byte, error) {
	if err := d.bus.RequestFrom(d.opts.Addr, 3); err != nil {
		return [3]byte{}, fmt.Errorf("mcp3425: request data: %w", err)
	}
	for i := 0; d.bus.Available() < 3 && i < d.opts.PollAttempts; i++ {
		d.sleep(d.opts.PollInterval)
	}
	if n := d.bus.Available(); n < 3 {
		d.log.Warn("timeout reading data", zap.Int("available", n))
		return [3]byte{}, ErrTimeout
	}
	return d.readN()
}

func (d *Dev) readN() ([3]byte, error) {
	var b [3]byte
	for i := range b {
		v, err := d.bus.ReadByte()
		if err != nil {
			return [3]byte{}, fmt.Errorf("mcp3425: read byte %d: %w", i, err)
		}
		b[i] = v
	}
	return b, nil
}

var _ analog.PinADC = &Dev{}
