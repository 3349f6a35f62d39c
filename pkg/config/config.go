package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	jsondec "github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/list"
	"go.uber.org/multierr"
)

// EnvPrefix is prepended to configuration keys looked up in the environment,
// e.g. MCP3425_MQTT_SERVER for mqtt.server.
const EnvPrefix = "MCP3425_"

// FileKey holds the path of the optional JSON configuration file.
const FileKey = "config.file"

type I2CConfig struct {
	Bus     string
	Address int
}

type ADCConfig struct {
	Resolution int
	Gain       int
	OneShot    bool
	Retries    int
	Strict     bool
}

type CalibrationConfig struct {
	Scale  float64
	Offset float64
}

type MQTTConfig struct {
	Server            string
	Username          string
	Password          string
	ClientID          string
	StateTopic        string
	DiscoveryTopic    string
	DiscoveryName     string
	DiscoveryUniqueID string
}

type OutputConfig struct {
	Type       string
	IntervalMs int
	MQTT       *MQTTConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// Config is the service configuration. It marshals to the JSON file layout
// Load reads, so a dumped configuration can be passed back as config.file.
type Config struct {
	I2C         I2CConfig
	ADC         ADCConfig
	Calibration CalibrationConfig
	SensorType  string
	IntervalMs  int
	Outputs     []OutputConfig
	Log         LogConfig
}

// Defaults returns the default value of every key Load understands.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"i2c.bus":            "1",
		"i2c.address":        "0x68",
		"adc.resolution":     16,
		"adc.gain":           1,
		"adc.oneshot":        false,
		"adc.retries":        10,
		"adc.strict":         false,
		"calibration.scale":  1.0,
		"calibration.offset": 0.0,
		"sensor.type":        "real",
		"interval":           1000,
		"outputs":            "console",
		"console.interval":   0,
		"mqtt.interval":      0,
		"mqtt.server":        "tcp://localhost:1883",
		"mqtt.username":      "",
		"mqtt.password":      "",
		"mqtt.client":        "mcp3425-client",
		"mqtt.topic":         "mcp3425",
		"mqtt.discovery":     "",
		"mqtt.name":          "",
		"mqtt.uid":           "",
		"log.level":          "info",
		"log.format":         "console",
	}
}

// Load builds the configuration from, in order of precedence, the
// overrides (usually command line flags), the environment, the JSON file
// named by config.file and the defaults.
func Load(overrides map[string]interface{}) (Config, error) {
	c := config.New(
		dict.New(dict.WithMap(overrides)),
		env.New(
			env.WithEnvPrefix(EnvPrefix),
			env.WithListSplitter(list.NewSplitter(","))),
		config.WithDefault(dict.New(dict.WithMap(Defaults()))))
	if v, err := c.Get(FileKey); err == nil && v.String() != "" {
		if _, err := os.Stat(v.String()); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		c.Append(blob.NewConfigFile(c, FileKey, "", jsondec.NewDecoder()))
	}
	return fromConfig(c)
}

func fromConfig(c *config.Config) (Config, error) {
	var errs error
	get := func(key string) config.Value {
		v, err := c.Get(key)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}

	cfg := Config{
		I2C: I2CConfig{Bus: get("i2c.bus").String()},
		ADC: ADCConfig{
			Resolution: get("adc.resolution").Int(),
			Gain:       get("adc.gain").Int(),
			OneShot:    get("adc.oneshot").Bool(),
			Retries:    get("adc.retries").Int(),
			Strict:     get("adc.strict").Bool(),
		},
		Calibration: CalibrationConfig{
			Scale:  get("calibration.scale").Float(),
			Offset: get("calibration.offset").Float(),
		},
		SensorType: strings.ToLower(get("sensor.type").String()),
		IntervalMs: get("interval").Int(),
		Log: LogConfig{
			Level:  get("log.level").String(),
			Format: get("log.format").String(),
		},
	}
	addr, err := parseIntOrHex(get("i2c.address").String())
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("i2c.address: %w", err))
	}
	cfg.I2C.Address = addr

	mqtt := MQTTConfig{
		Server:            get("mqtt.server").String(),
		Username:          get("mqtt.username").String(),
		Password:          get("mqtt.password").String(),
		ClientID:          get("mqtt.client").String(),
		StateTopic:        get("mqtt.topic").String(),
		DiscoveryTopic:    get("mqtt.discovery").String(),
		DiscoveryName:     get("mqtt.name").String(),
		DiscoveryUniqueID: get("mqtt.uid").String(),
	}
	for _, t := range parseCSV(get("outputs").String()) {
		t = strings.ToLower(t)
		out := OutputConfig{Type: t, IntervalMs: cfg.IntervalMs}
		switch t {
		case "console":
		case "mqtt":
			m := mqtt
			out.MQTT = &m
		default:
			cfg.Outputs = append(cfg.Outputs, out)
			continue
		}
		if v := get(t + ".interval").Int(); v > 0 {
			out.IntervalMs = v
		}
		cfg.Outputs = append(cfg.Outputs, out)
	}
	if errs != nil {
		return cfg, errs
	}
	return cfg, cfg.Validate()
}

// Keys flattens c into the keys Load reads.
func (c Config) Keys() map[string]interface{} {
	types := make([]string, 0, len(c.Outputs))
	m := map[string]interface{}{
		"i2c.bus":            c.I2C.Bus,
		"i2c.address":        fmt.Sprintf("0x%02x", c.I2C.Address),
		"adc.resolution":     c.ADC.Resolution,
		"adc.gain":           c.ADC.Gain,
		"adc.oneshot":        c.ADC.OneShot,
		"adc.retries":        c.ADC.Retries,
		"adc.strict":         c.ADC.Strict,
		"calibration.scale":  c.Calibration.Scale,
		"calibration.offset": c.Calibration.Offset,
		"sensor.type":        c.SensorType,
		"interval":           c.IntervalMs,
		"log.level":          c.Log.Level,
		"log.format":         c.Log.Format,
	}
	for _, o := range c.Outputs {
		types = append(types, o.Type)
		m[o.Type+".interval"] = o.IntervalMs
		if o.MQTT == nil {
			continue
		}
		m["mqtt.server"] = o.MQTT.Server
		m["mqtt.username"] = o.MQTT.Username
		m["mqtt.password"] = o.MQTT.Password
		m["mqtt.client"] = o.MQTT.ClientID
		m["mqtt.topic"] = o.MQTT.StateTopic
		m["mqtt.discovery"] = o.MQTT.DiscoveryTopic
		m["mqtt.name"] = o.MQTT.DiscoveryName
		m["mqtt.uid"] = o.MQTT.DiscoveryUniqueID
	}
	m["outputs"] = strings.Join(types, ",")
	return m
}

// MarshalJSON nests Keys on their dots, e.g. {"adc":{"resolution":16}}.
func (c Config) MarshalJSON() ([]byte, error) {
	root := map[string]interface{}{}
	for k, v := range c.Keys() {
		node := root
		path := strings.Split(k, ".")
		for _, p := range path[:len(path)-1] {
			child, ok := node[p].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[p] = child
			}
			node = child
		}
		node[path[len(path)-1]] = v
	}
	return json.Marshal(root)
}

// Validate checks the values the service cannot recover from. The ADC
// resolution is deliberately not checked; the driver falls back to its
// default.
func (c Config) Validate() error {
	if c.IntervalMs <= 0 {
		return errors.New("interval must be > 0")
	}
	if c.I2C.Address <= 0 || c.I2C.Address > 0x7F {
		return fmt.Errorf("i2c.address 0x%x is not a 7-bit address", c.I2C.Address)
	}
	switch c.SensorType {
	case "real", "simulation":
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	if len(c.Outputs) == 0 {
		return errors.New("no outputs configured")
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case "console", "mqtt":
		default:
			return fmt.Errorf("unknown output %q", o.Type)
		}
		if o.IntervalMs <= 0 {
			return fmt.Errorf("%s.interval must be > 0", o.Type)
		}
	}
	return nil
}

// ParseKeyIntMap parses "a=1,b=2" pairs, as used for per-output intervals.
func ParseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid pair %q", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", p, err)
		}
		out[strings.TrimSpace(kv[0])] = v
	}
	return out, nil
}

func parseIntOrHex(s string) (int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
