package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/config"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/output"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/output/console"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/sensor"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample continuously and publish to the configured outputs",
	Args:  cobra.NoArgs,
	RunE:  run,
}

type outputEntry struct {
	Output     output.Output
	Type       string
	IntervalMs int
	buf        []sensor.Reading
	next       time.Time
}

func run(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	s, err := newSensor(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("sensor close", zap.Error(err))
		}
	}()

	entries, err := initOutputs(&cfg, cfg.IntervalMs, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeOutputs(entries); err != nil {
			log.Warn("output close", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(computeSensorInterval(cfg)) * time.Millisecond
	log.Info("sampling",
		zap.String("sensor", cfg.SensorType),
		zap.Duration("interval", interval),
		zap.Int("outputs", len(entries)))
	return loop(ctx, s, entries, interval, log)
}

func loop(ctx context.Context, s sensor.Sensor, entries []outputEntry, interval time.Duration, log *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			readings, err := s.Read()
			if err != nil {
				log.Warn("sensor read failed", zap.Error(err))
				continue
			}
			for i := range entries {
				if err := entries[i].add(now, readings); err != nil {
					log.Warn("publish failed", zap.String("output", entries[i].Type), zap.Error(err))
				}
			}
		}
	}
}

// add buffers readings and, once the entry's interval has elapsed, publishes
// their average.
func (e *outputEntry) add(now time.Time, readings []sensor.Reading) error {
	iv := time.Duration(e.IntervalMs) * time.Millisecond
	if e.next.IsZero() {
		e.next = now.Add(iv)
	}
	e.buf = append(e.buf, readings...)
	if now.Before(e.next) {
		return nil
	}
	avg, ok := sensor.Average(e.buf)
	e.buf = e.buf[:0]
	e.next = now.Add(iv)
	if !ok {
		return nil
	}
	return e.Output.Publish([]sensor.Reading{avg})
}

// computeSensorInterval returns the sensor polling period in ms: one
// conversion at the configured resolution plus a small margin.
func computeSensorInterval(cfg config.Config) int {
	return int(sensor.ConversionInterval(cfg.ADC.Resolution)/time.Millisecond) + 2
}

// initOutputs builds the configured outputs. Outputs without an interval
// get defaultIntervalMs, which is also written back to cfg.
func initOutputs(cfg *config.Config, defaultIntervalMs int, log *zap.Logger) ([]outputEntry, error) {
	entries := make([]outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = defaultIntervalMs
		}
		var (
			out output.Output
			err error
		)
		switch oc.Type {
		case "console":
			out = console.NewConsole()
		case "mqtt":
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			out, err = mqtt.NewMQTT(mc, log)
		default:
			err = fmt.Errorf("unknown output %q", oc.Type)
		}
		if err != nil {
			_ = closeOutputs(entries)
			return nil, err
		}
		entries = append(entries, outputEntry{Output: out, Type: oc.Type, IntervalMs: oc.IntervalMs})
	}
	return entries, nil
}

func closeOutputs(entries []outputEntry) error {
	var err error
	for _, e := range entries {
		err = multierr.Append(err, e.Output.Close())
	}
	return err
}
