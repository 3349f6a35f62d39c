package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/config"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/mcp3425"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/mcp3425/mcp3425test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func testConfig() config.Config {
	return config.Config{
		I2C:         config.I2CConfig{Bus: "1", Address: 0x68},
		ADC:         config.ADCConfig{Resolution: 12, Gain: 1, Retries: 3},
		Calibration: config.CalibrationConfig{Scale: 2.0, Offset: 0.1},
		SensorType:  "simulation",
		IntervalMs:  1000,
	}
}

func TestMCP3425SensorRead(t *testing.T) {
	pb := &mcp3425test.Playback{
		Responses: [][]byte{{0x01, 0xF4, 0x10}},
	}
	cfg := testConfig()
	dev, err := mcp3425.New(pb, driverOpts(cfg, nil))
	require.Nil(t, err)
	c := &closer{}
	s, err := newMCP3425Sensor(dev, c, cfg, nil)
	require.Nil(t, err)
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	s.now = func() time.Time { return ts }

	rr, err := s.Read()
	require.Nil(t, err)
	require.Len(t, rr, 1)
	// 0x01F4 = 500 codes of 1 mV, doubled plus offset
	assert.Equal(t, int16(500), rr[0].Raw)
	assert.Equal(t, int16(500), rr[0].Code)
	assert.Equal(t, 12, rr[0].Resolution)
	assert.InDelta(t, 1.1, rr[0].Value, 1e-9)
	assert.Equal(t, ts, rr[0].Timestamp)

	_, err = s.Read()
	assert.True(t, errors.Is(err, mcp3425.ErrTimeout))

	require.Nil(t, s.Close())
	assert.True(t, c.closed)
	// init write, then the standby write from Close
	assert.Equal(t, [][]byte{{0x90}, {0x00}}, pb.Writes)
}

func TestMCP3425SensorStrict(t *testing.T) {
	cfg := testConfig()
	cfg.ADC.Resolution = 10
	cfg.ADC.Strict = true
	dev, err := mcp3425.New(&mcp3425test.Playback{}, driverOpts(cfg, nil))
	require.Nil(t, err)
	_, err = newMCP3425Sensor(dev, nil, cfg, nil)
	assert.True(t, errors.Is(err, mcp3425.ErrInvalidResolution))
}

func TestMCP3425SensorInitErrorNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := testConfig()
	pb := &mcp3425test.Playback{WriteErr: errors.New("nack")}
	dev, err := mcp3425.New(pb, driverOpts(cfg, nil))
	require.Nil(t, err)
	s, err := newMCP3425Sensor(dev, nil, cfg, zap.New(core))
	require.Nil(t, err)
	assert.NotNil(t, s)

	entries := logs.FilterMessage("continuing after init error").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "nack")
}

func TestDriverOptsRetries(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 3, driverOpts(cfg, nil).MaxRetries)

	cfg.ADC.Retries = 0
	assert.Equal(t, mcp3425.NoRetry, driverOpts(cfg, nil).MaxRetries)

	// a busy device fails on the first status when retries are disabled
	busy := []byte{0x01, 0x02, 0x90}
	pb := &mcp3425test.Playback{Responses: [][]byte{busy, busy}}
	dev, err := mcp3425.New(pb, driverOpts(cfg, nil))
	require.Nil(t, err)
	_, err = dev.ReadRaw()
	assert.True(t, errors.Is(err, mcp3425.ErrNotReady))
	assert.Equal(t, 1, pb.Requests)
}

func TestFakeSensor(t *testing.T) {
	s, err := NewFakeSensor(testConfig(), nil)
	require.Nil(t, err)
	defer s.Close()
	rr, err := s.Read()
	require.Nil(t, err)
	require.Len(t, rr, 1)
	assert.Equal(t, 12, rr[0].Resolution)
	// 0.5..1.5 V scaled by 2 plus 0.1
	assert.True(t, rr[0].Value > 1.0 && rr[0].Value < 3.2, rr[0].Value)
}

func TestAverage(t *testing.T) {
	_, ok := Average(nil)
	assert.False(t, ok)

	ts := time.Now()
	avg, ok := Average([]Reading{
		{Raw: 1, Value: 1.0},
		{Raw: 2, Value: 2.0},
		{Raw: 3, Value: 6.0, Timestamp: ts},
	})
	require.True(t, ok)
	assert.Equal(t, 3.0, avg.Value)
	assert.Equal(t, int16(3), avg.Raw)
	assert.Equal(t, ts, avg.Timestamp)
}

func TestConversionInterval(t *testing.T) {
	assert.Equal(t, time.Second/240, ConversionInterval(12))
	assert.Equal(t, time.Second/60, ConversionInterval(14))
	assert.Equal(t, time.Second/15, ConversionInterval(16))
	assert.Equal(t, time.Second/15, ConversionInterval(0))
	assert.Equal(t, time.Second/15, ConversionInterval(13))
}
