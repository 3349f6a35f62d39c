package mcp3425

import (
	"fmt"
	"time"
)

// Vref is the internal reference voltage of the converter.
const Vref = 2.048

// Resolution selects the converter's sample rate and therefore its
// effective bit width. The zero value means "not given" and resolves to
// Bits16.
type Resolution int

const (
	Bits12 Resolution = 12
	Bits14 Resolution = 14
	Bits16 Resolution = 16
)

// DefaultResolution is used when Init is called with the zero Resolution or
// with an unsupported value.
const DefaultResolution = Bits16

func (r Resolution) String() string {
	return fmt.Sprintf("%d-bit", int(r))
}

// Valid reports whether r is one the device supports.
func (r Resolution) Valid() bool {
	_, ok := settings[r]
	return ok
}

// Gain is the programmable gain amplifier setting.
type Gain int

const (
	Gain1 Gain = 1
	Gain2 Gain = 2
	Gain4 Gain = 4
	Gain8 Gain = 8
)

func (g Gain) bits() (byte, bool) {
	switch g {
	case Gain1:
		return 0x0, true
	case Gain2:
		return 0x1, true
	case Gain4:
		return 0x2, true
	case Gain8:
		return 0x3, true
	}
	return 0, false
}

// configuration register bits
const (
	cfgNotReady   = 0x80
	cfgContinuous = 0x10
	rateShift     = 2
)

// setting is one row of the resolution table. Everything derived from a
// resolution lives here so it is swapped as a single value.
type setting struct {
	res       Resolution
	rateBits  byte
	sps       int
	lsb       float64
	maxCode   int32
	divisor   float64
	signBit   uint16
	mask      uint16
	retryWait time.Duration
}

var settings = map[Resolution]setting{
	Bits12: {res: Bits12, rateBits: 0x0, sps: 240, lsb: 0.001, maxCode: 2047, divisor: 2048, signBit: 0x0800, mask: 0x0FFF, retryWait: 1500 * time.Microsecond},
	Bits14: {res: Bits14, rateBits: 0x1, sps: 60, lsb: 0.00025, maxCode: 8191, divisor: 8192, signBit: 0x2000, mask: 0x3FFF, retryWait: 6 * time.Millisecond},
	Bits16: {res: Bits16, rateBits: 0x2, sps: 15, lsb: 0.0000625, maxCode: 32767, divisor: 32768, signBit: 0x8000, mask: 0xFFFF, retryWait: 30 * time.Millisecond},
}

// configByte builds the value written to the device. The RDY bit is always
// set; in one-shot mode that starts a conversion.
func (s setting) configByte(oneShot bool, gain byte) byte {
	c := byte(cfgNotReady) | s.rateBits<<rateShift | gain
	if !oneShot {
		c |= cfgContinuous
	}
	return c
}

// code returns the signed conversion result held in the low bits of raw.
func (s setting) code(raw int16) int16 {
	if s.res == Bits16 {
		return raw
	}
	v := uint16(raw) & s.mask
	if v&s.signBit != 0 {
		v |= ^s.mask
	}
	return int16(v)
}

func (s setting) volts(raw int16, gain Gain) float64 {
	return float64(s.code(raw)) * Vref / s.divisor / float64(gain)
}

// Code returns the sign-extended conversion code of raw for resolution r,
// discarding the sign-repeated upper bits. Unknown resolutions yield 0.
func Code(raw int16, r Resolution) int16 {
	s, ok := settings[r]
	if !ok {
		return 0
	}
	return s.code(raw)
}

// Voltage converts a raw sample read at resolution r with unity gain.
// Unknown resolutions yield 0.
func Voltage(raw int16, r Resolution) float64 {
	s, ok := settings[r]
	if !ok {
		return 0
	}
	return s.volts(raw, Gain1)
}

// LSB returns the size of one code step in volts for r at unity gain.
func LSB(r Resolution) float64 {
	return settings[r].lsb
}

// MaxCode returns the largest positive code r can produce.
func MaxCode(r Resolution) int32 {
	return settings[r].maxCode
}

// SampleRate returns the conversion rate in samples per second for r.
func SampleRate(r Resolution) int {
	return settings[r].sps
}

// ConfigByte returns the configuration byte for r in continuous mode at
// unity gain. It returns false if r is not supported.
func ConfigByte(r Resolution) (byte, bool) {
	s, ok := settings[r]
	if !ok {
		return 0, false
	}
	return s.configByte(false, 0), true
}
