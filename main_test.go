package main

import (
	"errors"
	"testing"
	"time"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/config"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/sensor"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func TestComputeSensorInterval(t *testing.T) {
	// 16-bit default: 15 SPS -> 66ms + 2
	cfg := config.Config{}
	if got := computeSensorInterval(cfg); got != 68 {
		t.Fatalf("default interval: got %d want 68", got)
	}

	cfg.ADC.Resolution = 12
	if got := computeSensorInterval(cfg); got != 6 {
		t.Fatalf("12-bit interval: got %d want 6", got)
	}

	cfg.ADC.Resolution = 14
	if got := computeSensorInterval(cfg); got != 18 {
		t.Fatalf("14-bit interval: got %d want 18", got)
	}

	// unsupported resolution falls back like the driver does
	cfg.ADC.Resolution = 13
	if got := computeSensorInterval(cfg); got != 68 {
		t.Fatalf("fallback interval: got %d want 68", got)
	}
}

func TestInitOutputsSetsInterval(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}}}
	entries, err := initOutputs(&cfg, 123, zap.NewNop())
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries len: %d", len(entries))
	}
	if cfg.Outputs[0].IntervalMs != 123 {
		t.Fatalf("cfg output interval not set, got %d", cfg.Outputs[0].IntervalMs)
	}
	if entries[0].IntervalMs != 123 {
		t.Fatalf("entry interval not set, got %d", entries[0].IntervalMs)
	}
}

func TestInitOutputsUnknown(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "syslog"}}}
	if _, err := initOutputs(&cfg, 100, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unknown output")
	}
}

type recorder struct {
	published [][]sensor.Reading
	err       error
}

func (r *recorder) Publish(rr []sensor.Reading) error {
	r.published = append(r.published, rr)
	return r.err
}

func (r *recorder) Close() error { return r.err }

func TestOutputEntryAverages(t *testing.T) {
	rec := &recorder{}
	e := outputEntry{Output: rec, Type: "test", IntervalMs: 100}
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	steps := []struct {
		at    time.Duration
		value float64
	}{
		{0, 1.0},
		{50 * time.Millisecond, 2.0},
		{100 * time.Millisecond, 3.0},
		{150 * time.Millisecond, 10.0},
	}
	for _, s := range steps {
		if err := e.add(t0.Add(s.at), []sensor.Reading{{Value: s.value}}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if len(rec.published) != 1 {
		t.Fatalf("published %d batches, want 1", len(rec.published))
	}
	if got := rec.published[0][0].Value; got != 2.0 {
		t.Fatalf("average: got %v want 2", got)
	}
	if len(e.buf) != 1 || e.buf[0].Value != 10.0 {
		t.Fatalf("buffer after publish: %+v", e.buf)
	}
}

func TestCloseOutputs(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	err := closeOutputs([]outputEntry{{Output: &recorder{err: errA}}, {Output: &recorder{}}, {Output: &recorder{err: errB}}})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("close errors not combined: %v", err)
	}
}

func TestOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.AddFlagSet(rootCmd.PersistentFlags())
	if err := fs.Parse([]string{"-r", "12", "--address", "0x6a", "--one-shot", "--output-intervals", "console=250,MQTT=5000"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	o, err := overrides(fs)
	if err != nil {
		t.Fatalf("overrides: %v", err)
	}
	want := map[string]interface{}{
		"adc.resolution":   "12",
		"i2c.address":      "0x6a",
		"adc.oneshot":      "true",
		"console.interval": 250,
		"mqtt.interval":    5000,
	}
	if len(o) != len(want) {
		t.Fatalf("overrides: got %v want %v", o, want)
	}
	for k, v := range want {
		if o[k] != v {
			t.Fatalf("overrides[%s]: got %v want %v", k, o[k], v)
		}
	}

	cfg, err := config.Load(o)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ADC.Resolution != 12 || cfg.I2C.Address != 0x6a || !cfg.ADC.OneShot {
		t.Fatalf("config from flags: %+v", cfg)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger(config.LogConfig{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := newLogger(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for bad level")
	}
	if _, err := newLogger(config.LogConfig{Format: "xml"}); err == nil {
		t.Fatalf("expected error for bad format")
	}
}
