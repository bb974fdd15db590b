package logic

import (
	"fmt"
	"sync"
)

// DutyWriter drives a PWM peripheral channel. Duty is in raw counts,
// 0 to the peripheral's maximum duty.
type DutyWriter interface {
	WriteDuty(channel int, duty uint32) error
}

// FanActuator converts a speed percentage into a duty cycle and keeps the
// last applied percentage.
type FanActuator struct {
	mu      sync.Mutex
	writer  DutyWriter
	channel int
	maxDuty uint32
	percent int
	duty    uint32
}

// NewFanActuator creates an actuator on a PWM channel with the given
// maximum duty count (255 for 8-bit resolution).
func NewFanActuator(w DutyWriter, channel int, maxDuty uint32) *FanActuator {
	return &FanActuator{
		writer:  w,
		channel: channel,
		maxDuty: maxDuty,
	}
}

// SetSpeed clamps percent into [0,100], writes the matching duty and returns
// the percentage actually applied. Callers detect clamping by comparing it
// with their request. The returned error only reports a peripheral write
// failure; the stored percentage is updated regardless.
func (a *FanActuator) SetSpeed(percent int) (int, error) {
	applied := ClampPercent(percent)
	duty := DutyFor(applied, a.maxDuty)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.percent = applied
	a.duty = duty

	if err := a.writer.WriteDuty(a.channel, duty); err != nil {
		return applied, fmt.Errorf("write duty %d on pwm channel %d: %w", duty, a.channel, err)
	}
	return applied, nil
}

// Percent returns the last applied percentage.
func (a *FanActuator) Percent() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.percent
}

// Duty returns the last duty count written.
func (a *FanActuator) Duty() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duty
}

// ClampPercent bounds percent to [0,100].
func ClampPercent(percent int) int {
	return min(max(percent, 0), 100)
}

// DutyFor maps a percentage onto [0,maxDuty], rounding half up.
// 50% at 8-bit resolution is 128.
func DutyFor(percent int, maxDuty uint32) uint32 {
	p := uint64(ClampPercent(percent))
	return uint32((p*uint64(maxDuty) + 50) / 100)
}
