package mcp3425

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"
)

// Bus is the two-wire transport the driver talks through. Writes are staged
// between BeginTransmission and EndTransmission; reads are requested with
// RequestFrom and then consumed one byte at a time.
type Bus interface {
	BeginTransmission(addr uint16)
	Write(b byte)
	EndTransmission() error
	RequestFrom(addr uint16, n int) error
	Available() int
	ReadByte() (byte, error)
}

// i2cBus adapts a periph.io i2c.Bus. Each transmission or request maps to
// exactly one Tx.
type i2cBus struct {
	bus  i2c.Bus
	addr uint16
	w    []byte
	r    []byte
}

// NewI2CBus returns a Bus backed by a periph.io I2C bus.
func NewI2CBus(b i2c.Bus) Bus {
	return &i2cBus{bus: b}
}

func (t *i2cBus) BeginTransmission(addr uint16) {
	t.addr = addr
	t.w = t.w[:0]
}

func (t *i2cBus) Write(b byte) {
	t.w = append(t.w, b)
}

func (t *i2cBus) EndTransmission() error {
	if err := t.bus.Tx(t.addr, t.w, nil); err != nil {
		return fmt.Errorf("i2c write 0x%02x: %w", t.addr, err)
	}
	return nil
}

func (t *i2cBus) RequestFrom(addr uint16, n int) error {
	t.r = nil
	buf := make([]byte, n)
	if err := t.bus.Tx(addr, nil, buf); err != nil {
		return fmt.Errorf("i2c read 0x%02x: %w", addr, err)
	}
	t.r = buf
	return nil
}

func (t *i2cBus) Available() int {
	return len(t.r)
}

func (t *i2cBus) ReadByte() (byte, error) {
	if len(t.r) == 0 {
		return 0, io.EOF
	}
	b := t.r[0]
	t.r = t.r[1:]
	return b, nil
}

func (t *i2cBus) String() string {
	return t.bus.String()
}
