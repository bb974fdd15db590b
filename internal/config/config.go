// Package config loads the fan controller configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
	"go.yaml.in/yaml/v4"
)

const maxWindow = logic.MaxInterval / 2

// DefaultMQTTScript is where packages install the MQTT.js browser bundle.
const DefaultMQTTScript = "/usr/share/fan-controller/mqtt.min.js"

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/fan-controller/fan-controller.yml"

// Tach sources.
const (
	TachGPIO    = "gpio"
	TachCounter = "counter"
)

var ErrNoChannels = errors.New("no fan channels configured")

var reID = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

var knownDrivers = map[string]bool{"sysfs": true, "periph": true, "openfan": true, "fake": true}

type Config struct {
	Debug      bool      `yaml:"debug" json:"debug"`
	LoopPeriod Duration  `yaml:"loop_period" json:"loop_period"`
	PWM        PWM       `yaml:"pwm" json:"pwm"`
	Tach       Tach      `yaml:"tach" json:"tach"`
	Channels   []Channel `yaml:"channels" json:"channels"`
	HTTP       HTTP      `yaml:"http" json:"http"`
	MQTT       MQTT      `yaml:"mqtt" json:"mqtt"`
}

type PWM struct {
	Driver         string `yaml:"driver" json:"driver"`
	FrequencyHz    uint32 `yaml:"frequency_hz" json:"frequency_hz"`
	ResolutionBits uint   `yaml:"resolution_bits" json:"resolution_bits"`
	SysfsRoot      string `yaml:"sysfs_root,omitempty" json:"sysfs_root,omitempty"`
	Port           string `yaml:"port,omitempty" json:"port,omitempty"`
}

type Tach struct {
	Source         string   `yaml:"source" json:"source"`
	Chip           string   `yaml:"chip" json:"chip"`
	KernelDebounce Duration `yaml:"kernel_debounce" json:"kernel_debounce"`
	CounterRoot    string   `yaml:"counter_root,omitempty" json:"counter_root,omitempty"`
}

// Channel describes one fan.
type Channel struct {
	ID                  string   `yaml:"id" json:"id"`
	Label               string   `yaml:"label" json:"label"`
	TachPin             int      `yaml:"tach_pin" json:"tach_pin"`
	Counter             string   `yaml:"counter,omitempty" json:"counter,omitempty"`
	PWM                 Output   `yaml:"pwm" json:"pwm"`
	PulsesPerRevolution float64  `yaml:"pulses_per_revolution" json:"pulses_per_revolution"`
	Debounce            Duration `yaml:"debounce" json:"debounce"`
	Window              Duration `yaml:"window" json:"window"`
	InitialDuty         int      `yaml:"initial_duty" json:"initial_duty"`
	// MaxRPM is the simulated full speed in dummy mode.
	MaxRPM float64 `yaml:"max_rpm,omitempty" json:"max_rpm,omitempty"`
}

// Output locates a channel's PWM signal; see pwm.Output.
type Output struct {
	Chip    int    `yaml:"chip" json:"chip"`
	Channel int    `yaml:"channel" json:"channel"`
	Pin     string `yaml:"pin,omitempty" json:"pin,omitempty"`
	Fan     int    `yaml:"fan" json:"fan"`
}

type HTTP struct {
	// Listen is the status server address, empty to disable.
	Listen string `yaml:"listen" json:"listen"`
	// MQTTScript is the MQTT.js browser bundle served at /mqtt.min.js.
	MQTTScript string `yaml:"mqtt_script" json:"mqtt_script"`
}

type MQTT struct {
	Broker    string   `yaml:"broker" json:"broker"`
	ClientID  string   `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	Prefix    string   `yaml:"prefix" json:"prefix"`
	Heartbeat Duration `yaml:"heartbeat" json:"heartbeat"`
	Buffer    int      `yaml:"buffer" json:"buffer"`
	// WSBroker is the websocket URL handed to the status page: "=broker"
	// derives it from Broker, "off" or empty disables it.
	WSBroker string `yaml:"ws_broker" json:"ws_broker"`
}

// Enabled reports whether an MQTT broker is configured.
func (m MQTT) Enabled() bool {
	return m.Broker != ""
}

// Default returns the reference board: two fans with tachometers on
// GPIO23/GPIO24 and PWM on pwmchip0 channels 0/1 (GPIO18/GPIO19).
func Default() Config {
	return Config{
		LoopPeriod: D(100 * time.Millisecond),
		PWM: PWM{
			Driver:         "sysfs",
			FrequencyHz:    25000,
			ResolutionBits: 8,
		},
		Tach: Tach{
			Source: TachGPIO,
			Chip:   "gpiochip0",
		},
		Channels: []Channel{
			defaultChannel("intake", "Intake", 23, Output{Chip: 0, Channel: 0, Pin: "GPIO18", Fan: 0}),
			defaultChannel("exhaust", "Exhaust", 24, Output{Chip: 0, Channel: 1, Pin: "GPIO19", Fan: 1}),
		},
		HTTP: HTTP{Listen: ":80", MQTTScript: DefaultMQTTScript},
		MQTT: MQTT{
			Broker:    "tcp://192.168.1.200:1883",
			Prefix:    "energy/fans",
			Heartbeat: D(15 * time.Minute),
			Buffer:    1000,
			WSBroker:  "=broker",
		},
	}
}

func defaultChannel(id, label string, pin int, out Output) Channel {
	ch := channelDefaults()
	ch.ID, ch.Label, ch.TachPin, ch.PWM = id, label, pin, out
	return ch
}

// channelDefaults holds the calibration of the reference fans.
func channelDefaults() Channel {
	return Channel{
		PulsesPerRevolution: 1.83,
		Debounce:            D(500 * time.Microsecond),
		Window:              D(time.Second),
		MaxRPM:              2000,
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Decode reads YAML from r over the defaults and validates the result.
// A channels list in the document replaces the default channels; channel
// fields it leaves out keep the reference values.
func Decode(r io.Reader) (Config, error) {
	c := Default()
	c.Channels = nil

	var raw struct {
		Channels []yaml.Node `yaml:"channels"`
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return c, err
	}
	if err = yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if err = yaml.Unmarshal(data, &raw); err != nil {
		return c, err
	}

	if len(raw.Channels) == 0 {
		c.Channels = Default().Channels
	} else {
		c.Channels = make([]Channel, len(raw.Channels))
		for i, node := range raw.Channels {
			ch := channelDefaults()
			if err := node.Decode(&ch); err != nil {
				return c, fmt.Errorf("channel %d: %w", i, err)
			}
			c.Channels[i] = ch
		}
	}

	return c, c.Validate()
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}

	if c.PWM.FrequencyHz == 0 {
		return errors.New("pwm: frequency_hz must be positive")
	}
	if c.PWM.ResolutionBits < 1 || c.PWM.ResolutionBits > 16 {
		return fmt.Errorf("pwm: resolution_bits %d out of range [1,16]", c.PWM.ResolutionBits)
	}
	if !knownDrivers[c.PWM.Driver] {
		return fmt.Errorf("pwm: unknown driver %q", c.PWM.Driver)
	}
	if c.PWM.Driver == "openfan" && c.PWM.Port == "" {
		return errors.New("pwm: openfan driver needs a port")
	}

	switch c.Tach.Source {
	case TachGPIO, TachCounter:
	default:
		return fmt.Errorf("tach: unknown source %q", c.Tach.Source)
	}
	if c.Tach.KernelDebounce.Duration < 0 {
		return errors.New("tach: kernel_debounce must not be negative")
	}

	seen := make(map[string]bool, len(c.Channels))
	var shortest time.Duration
	for _, ch := range c.Channels {
		if !reID.MatchString(ch.ID) {
			return fmt.Errorf("%q: invalid channel id", ch.ID)
		}
		if seen[ch.ID] {
			return fmt.Errorf("%s: duplicate channel id", ch.ID)
		}
		seen[ch.ID] = true

		if ch.PulsesPerRevolution <= 0 {
			return fmt.Errorf("%s: pulses_per_revolution must be positive", ch.ID)
		}
		if ch.Debounce.Duration < 0 {
			return fmt.Errorf("%s: debounce must not be negative", ch.ID)
		}
		// Twice the window must fit in a microsecond tick delta for
		// stretched windows to be detected.
		if ch.Window.Duration <= 0 || ch.Window.Duration > maxWindow {
			return fmt.Errorf("%s: window %v out of range (0,%v]", ch.ID, ch.Window, maxWindow)
		}
		if ch.InitialDuty < 0 || ch.InitialDuty > 100 {
			return fmt.Errorf("%s: initial_duty %d out of range [0,100]", ch.ID, ch.InitialDuty)
		}
		if c.Tach.Source == TachCounter && ch.Counter == "" {
			return fmt.Errorf("%s: counter source needs a counter", ch.ID)
		}
		if c.PWM.Driver == "periph" && ch.PWM.Pin == "" {
			return fmt.Errorf("%s: periph driver needs a pwm pin", ch.ID)
		}

		if shortest == 0 || ch.Window.Duration < shortest {
			shortest = ch.Window.Duration
		}
	}

	if c.LoopPeriod.Duration <= 0 || c.LoopPeriod.Duration > shortest/2 {
		return fmt.Errorf("loop_period %v out of range (0,%v]", c.LoopPeriod, shortest/2)
	}

	if c.MQTT.Enabled() {
		if c.MQTT.Prefix == "" {
			return errors.New("mqtt: prefix must not be empty")
		}
		if c.MQTT.Heartbeat.Duration < 0 {
			return errors.New("mqtt: heartbeat must not be negative")
		}
	}

	return nil
}

// Encode writes c as YAML.
func (c Config) Encode(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WSBrokerURL resolves MQTT.WSBroker into a concrete URL. "=broker" derives
// ws://host:9001 from the TCP broker address; "off" or empty disables.
func (c Config) WSBrokerURL() (string, error) {
	ws := c.MQTT.WSBroker
	if ws == "off" || ws == "" {
		return "", nil
	}
	if ws != "=broker" {
		return ws, nil
	}
	u, err := url.Parse(c.MQTT.Broker)
	if err != nil {
		return "", fmt.Errorf("ws_broker: cannot parse broker %q: %w", c.MQTT.Broker, err)
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String(), nil
}
