package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/mdouchement/logger"
	"github.com/sweeney/fan-controller/internal/config"
	"github.com/sweeney/fan-controller/internal/counter"
	"github.com/sweeney/fan-controller/internal/gpio"
	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/pwm"
)

// simulatorStep is how often dummy fans emit their edges.
const simulatorStep = 10 * time.Millisecond

// rig is the assembled hardware: one PWM writer, one pulse source per
// channel and the controller tying them together.
type rig struct {
	ctrl    *logic.ControllerState
	clock   logic.MonotonicClock
	writer  pwm.Writer
	driver  string
	closers []io.Closer
	sims    []*gpio.Simulator
}

// openRig opens the PWM driver and tachometer inputs described by cfg and
// applies each channel's initial duty. In dummy mode the PWM writer is a
// fake and the tachometers are simulated from the applied duty.
func openRig(cfg config.Config, dummy bool, watch gpio.WatchFunc, log logger.Logger) (r *rig, err error) {
	r = &rig{driver: cfg.PWM.Driver, clock: logic.NewMonotonicClock()}
	if dummy {
		r.driver = pwm.DriverFake
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	pwmCfg := pwm.Config{FrequencyHz: cfg.PWM.FrequencyHz, ResolutionBits: cfg.PWM.ResolutionBits}
	outputs := make([]pwm.Output, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		outputs = append(outputs, pwm.Output{
			Chip:    ch.PWM.Chip,
			Channel: ch.PWM.Channel,
			Pin:     ch.PWM.Pin,
			Fan:     ch.PWM.Fan,
		})
	}

	r.writer, err = pwm.Open(pwm.Options{
		Driver:    r.driver,
		Config:    pwmCfg,
		Outputs:   outputs,
		SysfsRoot: cfg.PWM.SysfsRoot,
		Port:      cfg.PWM.Port,
	})
	if err != nil {
		return r, fmt.Errorf("pwm %s: %w", r.driver, err)
	}
	if ofw, ok := r.writer.(*pwm.OpenFanWriter); ok && cfg.Debug {
		ofw.SetLogger(log)
	}

	start := r.clock.Now()

	channels := make([]*logic.FanChannel, 0, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		act := logic.NewFanActuator(r.writer, i, pwmCfg.MaxDuty())

		src, err := r.pulseSource(cfg, ch, dummy, act, watch, log)
		if err != nil {
			return r, fmt.Errorf("%s: %w", ch.ID, err)
		}

		channels = append(channels, logic.NewFanChannel(logic.ChannelConfig{
			ID:                  ch.ID,
			Label:               ch.Label,
			PulsesPerRevolution: ch.PulsesPerRevolution,
			Window:              ch.Window.Duration,
			Slack:               cfg.LoopPeriod.Duration,
		}, src, act, start))
	}

	r.ctrl, err = logic.NewControllerState(channels...)
	if err != nil {
		return r, err
	}

	for _, ch := range cfg.Channels {
		applied, err := r.ctrl.SetChannelSpeed(ch.ID, ch.InitialDuty)
		if err != nil {
			log.WithError(err).Errorf("Could not apply initial duty to %s", ch.ID)
			continue
		}
		log.Infof("%s: initial speed %d%%", ch.ID, applied)
	}

	for _, sim := range r.sims {
		sim.Start(simulatorStep)
	}

	return r, nil
}

func (r *rig) pulseSource(cfg config.Config, ch config.Channel, dummy bool, act *logic.FanActuator, watch gpio.WatchFunc, log logger.Logger) (logic.PulseSource, error) {
	if dummy {
		pc := logic.NewPulseCounter(ch.Debounce.Duration)
		sim := gpio.NewSimulator(ch.MaxRPM, ch.PulsesPerRevolution, act.Percent, func(ts time.Duration) {
			pc.OnEdge(logic.MicrosFromDuration(ts))
		})
		r.sims = append(r.sims, sim)
		r.closers = append(r.closers, sim)
		return pc, nil
	}

	switch cfg.Tach.Source {
	case config.TachCounter:
		root := cfg.Tach.CounterRoot
		if root == "" {
			root = counter.DefaultRoot
		}
		c, err := counter.Open(filepath.Join(root, ch.Counter))
		if err != nil {
			return nil, err
		}
		c.SetLogger(log)
		log.Infof("%s: tach from hardware counter %s", ch.ID, ch.Counter)
		return c, nil
	default:
		pc := logic.NewPulseCounter(ch.Debounce.Duration)
		w, err := watch(gpio.Options{
			Chip:           cfg.Tach.Chip,
			Offset:         ch.TachPin,
			KernelDebounce: cfg.Tach.KernelDebounce.Duration,
		}, func(ts time.Duration) {
			pc.OnEdge(logic.MicrosFromDuration(ts))
		})
		if err != nil {
			return nil, fmt.Errorf("tach gpio %d: %w", ch.TachPin, err)
		}
		r.closers = append(r.closers, w)
		log.Infof("%s: tach on %s line %d", ch.ID, cfg.Tach.Chip, ch.TachPin)
		return pc, nil
	}
}

// Close stops the tachometer inputs and releases the PWM outputs.
func (r *rig) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	if r.writer != nil {
		errs = append(errs, r.writer.Close())
	}
	return errors.Join(errs...)
}
