package sensor

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/config"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/mcp3425"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type MCP3425Sensor struct {
	dev    *mcp3425.Dev
	bus    io.Closer
	scale  float64
	offset float64
	now    func() time.Time
	log    *zap.Logger
}

func NewMCP3425Sensor(cfg config.Config, log *zap.Logger) (Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev, err := mcp3425.NewI2C(bus, driverOpts(cfg, log))
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s, err := newMCP3425Sensor(dev, bus, cfg, log)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return s, nil
}

// newMCP3425Sensor initializes dev. Only a rejected resolution is fatal; a
// failed configuration write is logged by the driver and reads are
// attempted anyway.
func newMCP3425Sensor(dev *mcp3425.Dev, bus io.Closer, cfg config.Config, log *zap.Logger) (*MCP3425Sensor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := dev.Init(mcp3425.Resolution(cfg.ADC.Resolution)); err != nil {
		if errors.Is(err, mcp3425.ErrInvalidResolution) {
			return nil, err
		}
		log.Warn("continuing after init error", zap.Stringer("device", dev), zap.Error(err))
	}
	return &MCP3425Sensor{
		dev:    dev,
		bus:    bus,
		scale:  cfg.Calibration.Scale,
		offset: cfg.Calibration.Offset,
		now:    time.Now,
		log:    log,
	}, nil
}

func (s *MCP3425Sensor) Read() ([]Reading, error) {
	m, err := s.dev.Measure()
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return []Reading{{
		Channel:    0,
		Raw:        m.Raw,
		Code:       m.Code,
		Resolution: int(m.Resolution),
		Value:      m.Volts*s.scale + s.offset,
		Timestamp:  s.now(),
	}}, nil
}

// ReadConfig returns the configuration byte echoed by the device.
func (s *MCP3425Sensor) ReadConfig() (byte, error) {
	return s.dev.ReadConfig()
}

func (s *MCP3425Sensor) Close() error {
	err := s.dev.Halt()
	if s.bus != nil {
		err = multierr.Append(err, s.bus.Close())
	}
	return err
}
