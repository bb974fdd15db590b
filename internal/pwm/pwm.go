// Package pwm drives fan PWM inputs. Writers take raw duty counts in
// [0, Config.MaxDuty()] for a numbered channel.
package pwm

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownDriver = errors.New("unknown pwm driver")
	ErrChannelRange  = errors.New("pwm channel out of range")
)

// Driver names accepted by Open.
const (
	DriverSysfs   = "sysfs"
	DriverPeriph  = "periph"
	DriverOpenFan = "openfan"
	DriverFake    = "fake"
)

// Writer writes duty counts to PWM channels.
type Writer interface {
	WriteDuty(channel int, duty uint32) error
	Close() error
}

// Config is fixed at initialization.
type Config struct {
	FrequencyHz    uint32
	ResolutionBits uint
}

// DefaultConfig is the 4-wire fan standard: 25 kHz carrier, 8-bit duty.
var DefaultConfig = Config{FrequencyHz: 25000, ResolutionBits: 8}

// MaxDuty returns the largest duty count, 255 for 8 bits.
func (c Config) MaxDuty() uint32 {
	return 1<<c.ResolutionBits - 1
}

// Period returns the carrier period.
func (c Config) Period() time.Duration {
	if c.FrequencyHz == 0 {
		return 0
	}
	return time.Second / time.Duration(c.FrequencyHz)
}

// Validate checks the carrier settings.
func (c Config) Validate() error {
	if c.FrequencyHz == 0 {
		return errors.New("pwm frequency must be positive")
	}
	if c.ResolutionBits == 0 || c.ResolutionBits > 16 {
		return fmt.Errorf("pwm resolution %d bits out of range [1,16]", c.ResolutionBits)
	}
	return nil
}

// Output describes where one channel's PWM signal comes from. Which fields
// matter depends on the driver.
type Output struct {
	// sysfs: /sys/class/pwm/pwmchip<Chip>/pwm<Channel>
	Chip    int
	Channel int
	// periph: header pin name, e.g. "GPIO18"
	Pin string
	// openfan: fan index on the controller, 0 based
	Fan int
}

// Options selects and configures a driver.
type Options struct {
	Driver    string
	Config    Config
	Outputs   []Output
	SysfsRoot string
	Port      string
}

// Open creates the writer named by opts.Driver. Channel i of the writer
// drives opts.Outputs[i].
func Open(opts Options) (Writer, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	var (
		w   Writer
		err error
	)
	// w stays nil unless the constructor succeeded.
	switch opts.Driver {
	case DriverSysfs, "":
		var sw *SysfsWriter
		if sw, err = NewSysfsWriter(opts.SysfsRoot, opts.Config, opts.Outputs); err == nil {
			w = sw
		}
	case DriverPeriph:
		var pw *PeriphWriter
		if pw, err = NewPeriphWriter(opts.Config, opts.Outputs); err == nil {
			w = pw
		}
	case DriverOpenFan:
		var ow *OpenFanWriter
		if ow, err = OpenOpenFan(opts.Port, opts.Config, opts.Outputs); err == nil {
			w = ow
		}
	case DriverFake:
		w = NewFakeWriter(len(opts.Outputs))
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func checkChannel(channel, n int) error {
	if channel < 0 || channel >= n {
		return fmt.Errorf("%w: %d", ErrChannelRange, channel)
	}
	return nil
}
