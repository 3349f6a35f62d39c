// A service that samples an MCP3425 converter and publishes the readings.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ericogr/mcp3425-to-mqtt/pkg/config"
	"github.com/ericogr/mcp3425-to-mqtt/pkg/sensor"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var version = "undefined"

var rootCmd = &cobra.Command{
	Use:     "mcp3425-to-mqtt",
	Short:   "mcp3425-to-mqtt samples an MCP3425 ADC and publishes the readings",
	Long:    "mcp3425-to-mqtt samples an MCP3425 ADC over I2C and publishes calibrated voltages to the console or an MQTT broker",
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"config-file":          config.FileKey,
	"bus":                  "i2c.bus",
	"address":              "i2c.address",
	"resolution":           "adc.resolution",
	"gain":                 "adc.gain",
	"one-shot":             "adc.oneshot",
	"retries":              "adc.retries",
	"strict":               "adc.strict",
	"scale":                "calibration.scale",
	"offset":               "calibration.offset",
	"sensor":               "sensor.type",
	"interval":             "interval",
	"outputs":              "outputs",
	"mqtt-server":          "mqtt.server",
	"mqtt-user":            "mqtt.username",
	"mqtt-pass":            "mqtt.password",
	"mqtt-client-id":       "mqtt.client",
	"mqtt-topic":           "mqtt.topic",
	"mqtt-discovery-topic": "mqtt.discovery",
	"mqtt-discovery-name":  "mqtt.name",
	"log-level":            "log.level",
	"log-format":           "log.format",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config-file", "c", "", "path to JSON config file")
	pf.String("bus", "", "I2C bus (e.g. '1' -> /dev/i2c-1)")
	pf.String("address", "", "I2C address (decimal or 0x hex)")
	pf.IntP("resolution", "r", 16, "ADC resolution in bits: 12, 14 or 16")
	pf.Int("gain", 1, "PGA gain: 1, 2, 4 or 8")
	pf.Bool("one-shot", false, "start a conversion per read instead of converting continuously")
	pf.Int("retries", 10, "reads reissued while a conversion is not ready, 0 disables retries")
	pf.Bool("strict", false, "reject an unsupported resolution instead of using 16 bits")
	pf.Float64("scale", 1.0, "calibration scale factor (multiplier)")
	pf.Float64("offset", 0.0, "calibration offset")
	pf.String("sensor", "", "sensor type: real|simulation")
	pf.Int("interval", 1000, "default publish interval in ms")
	pf.String("outputs", "", "comma-separated outputs (console,mqtt)")
	pf.String("output-intervals", "", "comma-separated output intervals e.g. console=1000,mqtt=5000")
	pf.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	pf.String("mqtt-user", "", "MQTT username")
	pf.String("mqtt-pass", "", "MQTT password")
	pf.String("mqtt-client-id", "", "MQTT client id")
	pf.String("mqtt-topic", "", "MQTT state topic")
	pf.String("mqtt-discovery-topic", "", "Home Assistant discovery topic")
	pf.String("mqtt-discovery-name", "", "Home Assistant entity name")
	pf.String("log-level", "", "log level: debug|info|warn|error")
	pf.String("log-format", "", "log format: console|json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// overrides collects the flags set on the command line as configuration
// keys.
func overrides(flags *pflag.FlagSet) (map[string]interface{}, error) {
	m := map[string]interface{}{}
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "output-intervals" {
			iv, perr := config.ParseKeyIntMap(f.Value.String())
			if perr != nil {
				err = fmt.Errorf("output-intervals: %w", perr)
				return
			}
			for k, v := range iv {
				m[strings.ToLower(k)+".interval"] = v
			}
			return
		}
		if k, ok := flagKeys[f.Name]; ok {
			m[k] = f.Value.String()
		}
	})
	return m, err
}

// setup loads the configuration and builds the logger for a command.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	o, err := overrides(cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(o)
	if err != nil {
		return cfg, nil, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	switch strings.ToLower(lc.Format) {
	case "json":
		zc = zap.NewProductionConfig()
	case "", "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", lc.Format)
	}
	if lc.Level != "" {
		if err := zc.Level.UnmarshalText([]byte(lc.Level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	return zc.Build()
}

func newSensor(cfg config.Config, log *zap.Logger) (sensor.Sensor, error) {
	switch cfg.SensorType {
	case "simulation":
		return sensor.NewFakeSensor(cfg, log)
	default:
		return sensor.NewMCP3425Sensor(cfg, log)
	}
}
