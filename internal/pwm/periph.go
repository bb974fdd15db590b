package pwm

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// pwmPin is the part of gpio.PinIO the periph writer needs.
type pwmPin interface {
	Name() string
	PWM(duty gpio.Duty, f physic.Frequency) error
	Halt() error
}

var lookupPin = func(name string) (pwmPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no gpio pin named %q", name)
	}
	return p, nil
}

// PeriphWriter drives hardware PWM pins through periph.io.
type PeriphWriter struct {
	cfg  Config
	freq physic.Frequency
	pins []pwmPin
}

// NewPeriphWriter resolves each output's Pin by name and starts it at 0% duty.
func NewPeriphWriter(cfg Config, outputs []Output) (*PeriphWriter, error) {
	w := &PeriphWriter{
		cfg:  cfg,
		freq: physic.Frequency(cfg.FrequencyHz) * physic.Hertz,
	}

	for _, o := range outputs {
		p, err := lookupPin(o.Pin)
		if err != nil {
			w.Close()
			return nil, err
		}
		if err := p.PWM(0, w.freq); err != nil {
			w.Close()
			return nil, fmt.Errorf("pwm %s: %w", o.Pin, err)
		}
		w.pins = append(w.pins, p)
	}

	return w, nil
}

// Duty converts a raw duty count to periph's fixed-point duty.
func (w *PeriphWriter) Duty(duty uint32) gpio.Duty {
	duty = min(duty, w.cfg.MaxDuty())
	return gpio.Duty(uint64(duty) * uint64(gpio.DutyMax) / uint64(w.cfg.MaxDuty()))
}

func (w *PeriphWriter) WriteDuty(channel int, duty uint32) error {
	if err := checkChannel(channel, len(w.pins)); err != nil {
		return err
	}
	p := w.pins[channel]
	if err := p.PWM(w.Duty(duty), w.freq); err != nil {
		return fmt.Errorf("pwm %s: %w", p.Name(), err)
	}
	return nil
}

// Close halts every pin.
func (w *PeriphWriter) Close() error {
	var errs []error
	for _, p := range w.pins {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", p.Name(), err))
		}
	}
	w.pins = nil
	return errors.Join(errs...)
}
