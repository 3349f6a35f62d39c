package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyIntMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]int
		ok   bool
	}{
		{"", map[string]int{}, true},
		{"console=1000,mqtt=5000", map[string]int{"console": 1000, "mqtt": 5000}, true},
		{" console = 250 , mqtt=10", map[string]int{"console": 250, "mqtt": 10}, true},
		{"bad", nil, false},
		{"mqtt=x", nil, false},
	}
	for _, tt := range tests {
		got, err := ParseKeyIntMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("ParseKeyIntMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseKeyIntMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseIntOrHex(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"104", 104, true},
		{"0x68", 0x68, true},
		{"0X6f", 0x6f, true},
		{" 0x69 ", 0x69, true},
		{"0xzz", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := parseIntOrHex(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseIntOrHex(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("parseIntOrHex(%q) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.Nil(t, err)
	assert.Equal(t, "1", cfg.I2C.Bus)
	assert.Equal(t, 0x68, cfg.I2C.Address)
	assert.Equal(t, 16, cfg.ADC.Resolution)
	assert.Equal(t, 1, cfg.ADC.Gain)
	assert.Equal(t, 10, cfg.ADC.Retries)
	assert.False(t, cfg.ADC.OneShot)
	assert.Equal(t, 1.0, cfg.Calibration.Scale)
	assert.Equal(t, 0.0, cfg.Calibration.Offset)
	assert.Equal(t, "real", cfg.SensorType)
	assert.Equal(t, 1000, cfg.IntervalMs)
	assert.Equal(t, []OutputConfig{{Type: "console", IntervalMs: 1000}}, cfg.Outputs)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(map[string]interface{}{
		"i2c.bus":           "2",
		"i2c.address":       "0x6A",
		"adc.resolution":    "12",
		"adc.oneshot":       "true",
		"calibration.scale": "0.5",
		"sensor.type":       "Simulation",
		"interval":          "200",
		"outputs":           "console,mqtt",
		"mqtt.interval":     5000,
		"mqtt.server":       "tcp://broker:1883",
		"mqtt.discovery":    "homeassistant/sensor/mcp3425/config",
	})
	require.Nil(t, err)
	assert.Equal(t, "2", cfg.I2C.Bus)
	assert.Equal(t, 0x6A, cfg.I2C.Address)
	assert.Equal(t, 12, cfg.ADC.Resolution)
	assert.True(t, cfg.ADC.OneShot)
	assert.Equal(t, 0.5, cfg.Calibration.Scale)
	assert.Equal(t, "simulation", cfg.SensorType)
	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, OutputConfig{Type: "console", IntervalMs: 200}, cfg.Outputs[0])
	assert.Equal(t, "mqtt", cfg.Outputs[1].Type)
	assert.Equal(t, 5000, cfg.Outputs[1].IntervalMs)
	require.NotNil(t, cfg.Outputs[1].MQTT)
	assert.Equal(t, "tcp://broker:1883", cfg.Outputs[1].MQTT.Server)
	assert.Equal(t, "mcp3425-client", cfg.Outputs[1].MQTT.ClientID)
	assert.Equal(t, "homeassistant/sensor/mcp3425/config", cfg.Outputs[1].MQTT.DiscoveryTopic)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MCP3425_ADC_RESOLUTION", "14")
	t.Setenv("MCP3425_MQTT_SERVER", "tcp://env:1883")
	t.Setenv("MCP3425_MQTT_PASSWORD", "a:b,c")
	t.Setenv("MCP3425_OUTPUTS", "console,mqtt")

	cfg, err := Load(nil)
	require.Nil(t, err)
	assert.Equal(t, 14, cfg.ADC.Resolution)
	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, "console", cfg.Outputs[0].Type)
	require.NotNil(t, cfg.Outputs[1].MQTT)
	assert.Equal(t, "tcp://env:1883", cfg.Outputs[1].MQTT.Server)
	assert.Equal(t, "a:b,c", cfg.Outputs[1].MQTT.Password)

	// overrides win over the environment
	cfg, err = Load(map[string]interface{}{"adc.resolution": 12})
	require.Nil(t, err)
	assert.Equal(t, 12, cfg.ADC.Resolution)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp3425.json")
	js := `{
		"i2c": {"bus": "3", "address": 105},
		"adc": {"resolution": 14, "gain": 2},
		"calibration": {"offset": 0.12},
		"outputs": "console",
		"log": {"level": "debug"}
	}`
	require.Nil(t, os.WriteFile(path, []byte(js), 0o600))

	cfg, err := Load(map[string]interface{}{FileKey: path, "adc.gain": 4})
	require.Nil(t, err)
	assert.Equal(t, "3", cfg.I2C.Bus)
	assert.Equal(t, 105, cfg.I2C.Address)
	assert.Equal(t, 14, cfg.ADC.Resolution)
	assert.Equal(t, 4, cfg.ADC.Gain)
	assert.Equal(t, 0.12, cfg.Calibration.Offset)
	assert.Equal(t, 1.0, cfg.Calibration.Scale)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(map[string]interface{}{FileKey: filepath.Join(t.TempDir(), "nope.json")})
	assert.NotNil(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []map[string]interface{}{
		{"interval": 0},
		{"i2c.address": "0x80"},
		{"i2c.address": "sixty"},
		{"sensor.type": "magic"},
		{"outputs": "console,syslog"},
		{"outputs": ""},
	}
	for _, o := range tests {
		_, err := Load(o)
		assert.NotNil(t, err, "%v", o)
	}
}
