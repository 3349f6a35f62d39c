package sensor

import (
	"math"
	"math/rand"
	"time"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/config"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/mcp3425"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/mcp3425/mcp3425test"
	"go.uber.org/zap"
)

// NewFakeSensor runs the real driver against a simulated converter fed with
// a slow sine wave plus noise.
func NewFakeSensor(cfg config.Config, log *zap.Logger) (Sensor, error) {
	start := time.Now()
	sim := mcp3425test.NewSim(func() float64 {
		t := time.Since(start).Seconds()
		return 1.0 + 0.5*math.Sin(2*math.Pi*t/60) + (rand.Float64()-0.5)*0.002
	})
	sim.Addr = uint16(cfg.I2C.Address)
	dev, err := mcp3425.New(sim, driverOpts(cfg, log))
	if err != nil {
		return nil, err
	}
	s, err := newMCP3425Sensor(dev, nil, cfg, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}
