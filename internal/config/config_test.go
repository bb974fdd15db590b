package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v4"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	require.Len(t, c.Channels, 2)
	assert.Equal(t, "intake", c.Channels[0].ID)
	assert.Equal(t, 23, c.Channels[0].TachPin)
	assert.Equal(t, "exhaust", c.Channels[1].ID)
	assert.Equal(t, 1, c.Channels[1].PWM.Channel)
	assert.Equal(t, 1.83, c.Channels[0].PulsesPerRevolution)
	assert.Equal(t, 500*time.Microsecond, c.Channels[0].Debounce.Duration)
	assert.Equal(t, time.Second, c.Channels[1].Window.Duration)
	assert.Equal(t, uint32(25000), c.PWM.FrequencyHz)
	assert.Equal(t, uint(8), c.PWM.ResolutionBits)
	assert.Equal(t, 100*time.Millisecond, c.LoopPeriod.Duration)
}

const sample = `
debug: true
loop_period: 50ms
pwm:
  driver: openfan
  port: /dev/ttyACM0
mqtt:
  broker: ""
channels:
  - id: cpu
    label: CPU
    tach_pin: 5
    pwm: {fan: 3}
    pulses_per_revolution: 2
  - id: case_rear
    debounce: 0s
    window: 2s
    initial_duty: 40
`

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	assert.True(t, c.Debug)
	assert.Equal(t, 50*time.Millisecond, c.LoopPeriod.Duration)
	assert.Equal(t, "openfan", c.PWM.Driver)
	assert.Equal(t, uint32(25000), c.PWM.FrequencyHz, "unset pwm fields keep defaults")
	assert.False(t, c.MQTT.Enabled())

	require.Len(t, c.Channels, 2)
	cpu := c.Channels[0]
	assert.Equal(t, "CPU", cpu.Label)
	assert.Equal(t, 5, cpu.TachPin)
	assert.Equal(t, 3, cpu.PWM.Fan)
	assert.Equal(t, 2.0, cpu.PulsesPerRevolution)
	assert.Equal(t, time.Second, cpu.Window.Duration)

	rear := c.Channels[1]
	assert.Equal(t, 1.83, rear.PulsesPerRevolution)
	assert.Equal(t, time.Duration(0), rear.Debounce.Duration)
	assert.Equal(t, 2*time.Second, rear.Window.Duration)
	assert.Equal(t, 40, rear.InitialDuty)
	assert.Equal(t, 0, rear.TachPin)
}

func TestDecodeEmptyKeepsDefaults(t *testing.T) {
	c, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestDecodeBadDuration(t *testing.T) {
	_, err := Decode(strings.NewReader("loop_period: fast\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fan-controller.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cpu", c.Channels[0].ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no channels", func(c *Config) { c.Channels = nil }, "no fan channels"},
		{"bad id", func(c *Config) { c.Channels[0].ID = "Intake Fan" }, "invalid channel id"},
		{"duplicate id", func(c *Config) { c.Channels[1].ID = "intake" }, "duplicate"},
		{"zero ppr", func(c *Config) { c.Channels[0].PulsesPerRevolution = 0 }, "pulses_per_revolution"},
		{"negative debounce", func(c *Config) { c.Channels[0].Debounce = D(-time.Millisecond) }, "debounce"},
		{"zero window", func(c *Config) { c.Channels[1].Window = D(0) }, "window"},
		{"huge window", func(c *Config) { c.Channels[1].Window = D(2 * time.Hour) }, "window"},
		{"window past tick range", func(c *Config) { c.Channels[1].Window = D(40 * time.Minute) }, "window"},
		{"initial duty", func(c *Config) { c.Channels[0].InitialDuty = 101 }, "initial_duty"},
		{"loop too slow", func(c *Config) { c.LoopPeriod = D(600 * time.Millisecond) }, "loop_period"},
		{"zero loop", func(c *Config) { c.LoopPeriod = D(0) }, "loop_period"},
		{"frequency", func(c *Config) { c.PWM.FrequencyHz = 0 }, "frequency_hz"},
		{"resolution", func(c *Config) { c.PWM.ResolutionBits = 17 }, "resolution_bits"},
		{"driver", func(c *Config) { c.PWM.Driver = "pigpio" }, "unknown driver"},
		{"openfan port", func(c *Config) { c.PWM.Driver = "openfan" }, "port"},
		{"periph pin", func(c *Config) { c.PWM.Driver = "periph"; c.Channels[1].PWM.Pin = "" }, "pwm pin"},
		{"tach source", func(c *Config) { c.Tach.Source = "adc" }, "unknown source"},
		{"counter", func(c *Config) { c.Tach.Source = TachCounter }, "needs a counter"},
		{"mqtt prefix", func(c *Config) { c.MQTT.Prefix = "" }, "prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateNoChannelsSentinel(t *testing.T) {
	c := Default()
	c.Channels = nil
	assert.ErrorIs(t, c.Validate(), ErrNoChannels)
}

func TestEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Default().Encode(&buf))
	assert.Contains(t, buf.String(), "pulses_per_revolution: 1.83")

	c, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestDurationJSON(t *testing.T) {
	b, err := json.Marshal(D(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"250ms"`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Duration)
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
}

func TestDurationYAMLEmpty(t *testing.T) {
	d := D(time.Second)
	require.NoError(t, yaml.Unmarshal([]byte(`""`), &d))
	assert.Equal(t, time.Second, d.Duration)
}

func TestWSBrokerURL(t *testing.T) {
	c := Default()
	u, err := c.WSBrokerURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://192.168.1.200:9001", u)

	c.MQTT.WSBroker = "off"
	u, err = c.WSBrokerURL()
	require.NoError(t, err)
	assert.Empty(t, u)

	c.MQTT.WSBroker = "wss://mqtt.example/ws"
	u, err = c.WSBrokerURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://mqtt.example/ws", u)
}
