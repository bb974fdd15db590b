package pwm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// DefaultSysfsRoot is the Linux PWM class directory.
const DefaultSysfsRoot = "/sys/class/pwm"

// exportSettle gives udev time to fix permissions on a freshly exported channel.
var exportSettle = 200 * time.Millisecond

type sysfsPin struct {
	chipPath string
	channel  string
	periodNs uint64
	enabled  bool
}

func (p *sysfsPin) dir() string {
	return filepath.Join(p.chipPath, "pwm"+p.channel)
}

func (p *sysfsPin) export() error {
	if _, err := os.Stat(p.dir()); err == nil {
		return nil
	}

	err := os.WriteFile(filepath.Join(p.chipPath, "export"), []byte(p.channel), 0o644)
	if err != nil {
		var perr *os.PathError
		if !errors.As(err, &perr) || perr.Err != syscall.EBUSY {
			return err
		}
	}

	time.Sleep(exportSettle)
	return nil
}

func (p *sysfsPin) unexport() error {
	return os.WriteFile(filepath.Join(p.chipPath, "unexport"), []byte(p.channel), 0o644)
}

func (p *sysfsPin) write(attr string, v uint64) error {
	return os.WriteFile(filepath.Join(p.dir(), attr), []byte(strconv.FormatUint(v, 10)), 0o644)
}

func (p *sysfsPin) read(attr string) (uint64, error) {
	buf, err := os.ReadFile(filepath.Join(p.dir(), attr))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(bytes.TrimSpace(buf)), 10, 64)
}

func (p *sysfsPin) enable(on bool) error {
	if p.enabled == on {
		return nil
	}
	v := uint64(0)
	if on {
		v = 1
	}
	if err := p.write("enable", v); err != nil {
		return err
	}
	p.enabled = on
	return nil
}

// SysfsWriter drives PWM channels through the Linux PWM sysfs interface.
type SysfsWriter struct {
	cfg  Config
	pins []*sysfsPin
}

// NewSysfsWriter exports and enables every output at the configured
// carrier, starting at 0% duty.
func NewSysfsWriter(root string, cfg Config, outputs []Output) (*SysfsWriter, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}

	period := uint64(cfg.Period().Nanoseconds())
	w := &SysfsWriter{cfg: cfg}

	for _, o := range outputs {
		pin := &sysfsPin{
			chipPath: filepath.Join(root, "pwmchip"+strconv.Itoa(o.Chip)),
			channel:  strconv.Itoa(o.Channel),
			periodNs: period,
		}

		if err := pin.export(); err != nil {
			w.Close()
			return nil, fmt.Errorf("export pwmchip%d/pwm%d: %w", o.Chip, o.Channel, err)
		}
		// duty_cycle may never exceed period, so zero it before shrinking the period.
		if err := pin.write("duty_cycle", 0); err != nil {
			w.Close()
			return nil, fmt.Errorf("pwmchip%d/pwm%d duty: %w", o.Chip, o.Channel, err)
		}
		if err := pin.write("period", period); err != nil {
			w.Close()
			return nil, fmt.Errorf("pwmchip%d/pwm%d period: %w", o.Chip, o.Channel, err)
		}
		if err := pin.enable(true); err != nil {
			w.Close()
			return nil, fmt.Errorf("pwmchip%d/pwm%d enable: %w", o.Chip, o.Channel, err)
		}

		w.pins = append(w.pins, pin)
	}

	return w, nil
}

// WriteDuty sets duty_cycle to the duty's share of the period.
func (w *SysfsWriter) WriteDuty(channel int, duty uint32) error {
	if err := checkChannel(channel, len(w.pins)); err != nil {
		return err
	}
	pin := w.pins[channel]
	ns := pin.periodNs * uint64(min(duty, w.cfg.MaxDuty())) / uint64(w.cfg.MaxDuty())
	return pin.write("duty_cycle", ns)
}

// DutyNs reads back the duty_cycle attribute of a channel.
func (w *SysfsWriter) DutyNs(channel int) (uint64, error) {
	if err := checkChannel(channel, len(w.pins)); err != nil {
		return 0, err
	}
	return w.pins[channel].read("duty_cycle")
}

// Close disables and unexports every channel.
func (w *SysfsWriter) Close() error {
	var errs []error
	for _, pin := range w.pins {
		if err := pin.enable(false); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", pin.dir(), err))
		}
		if err := pin.unexport(); err != nil {
			errs = append(errs, fmt.Errorf("unexport %s: %w", pin.dir(), err))
		}
	}
	w.pins = nil
	return errors.Join(errs...)
}
