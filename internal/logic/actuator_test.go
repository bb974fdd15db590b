package logic

import (
	"errors"
	"testing"
)

// recordingWriter captures duty writes.
type recordingWriter struct {
	writes []dutyWrite
	err    error
}

type dutyWrite struct {
	channel int
	duty    uint32
}

func (w *recordingWriter) WriteDuty(channel int, duty uint32) error {
	w.writes = append(w.writes, dutyWrite{channel, duty})
	return w.err
}

func (w *recordingWriter) last() dutyWrite {
	return w.writes[len(w.writes)-1]
}

func TestClampPercent(t *testing.T) {
	tests := []struct{ in, want int }{
		{-100, 0},
		{-1, 0},
		{0, 0},
		{42, 42},
		{100, 100},
		{101, 100},
		{1000, 100},
	}
	for _, tt := range tests {
		if got := ClampPercent(tt.in); got != tt.want {
			t.Errorf("ClampPercent(%d): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDutyFor(t *testing.T) {
	tests := []struct {
		percent int
		maxDuty uint32
		want    uint32
	}{
		{0, 255, 0},
		{1, 255, 3},
		{10, 255, 26},
		{50, 255, 128},
		{99, 255, 252},
		{100, 255, 255},
		{50, 4095, 2048},
		{100, 4095, 4095},
		{150, 255, 255},
		{-5, 255, 0},
	}
	for _, tt := range tests {
		if got := DutyFor(tt.percent, tt.maxDuty); got != tt.want {
			t.Errorf("DutyFor(%d, %d): got %d, want %d", tt.percent, tt.maxDuty, got, tt.want)
		}
	}
}

func TestFanActuatorSetSpeed(t *testing.T) {
	w := &recordingWriter{}
	a := NewFanActuator(w, 1, 255)

	applied, err := a.SetSpeed(50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != 50 {
		t.Errorf("applied: got %d, want 50", applied)
	}
	if got := w.last(); got != (dutyWrite{channel: 1, duty: 128}) {
		t.Errorf("write: got %+v, want channel 1 duty 128", got)
	}
	if a.Percent() != 50 || a.Duty() != 128 {
		t.Errorf("state: got %d%% / %d, want 50%% / 128", a.Percent(), a.Duty())
	}
}

func TestFanActuatorClampsEveryRequest(t *testing.T) {
	w := &recordingWriter{}
	a := NewFanActuator(w, 0, 255)

	for p := -200; p <= 300; p++ {
		applied, err := a.SetSpeed(p)
		if err != nil {
			t.Fatalf("SetSpeed(%d): %v", p, err)
		}
		want := ClampPercent(p)
		if applied != want {
			t.Fatalf("SetSpeed(%d): applied %d, want %d", p, applied, want)
		}
		if a.Percent() != applied {
			t.Fatalf("SetSpeed(%d): stored %d, applied %d", p, a.Percent(), applied)
		}
		if w.last().duty != DutyFor(want, 255) {
			t.Fatalf("SetSpeed(%d): duty %d, want %d", p, w.last().duty, DutyFor(want, 255))
		}
	}
}

func TestFanActuatorIdempotent(t *testing.T) {
	w := &recordingWriter{}
	a := NewFanActuator(w, 0, 255)

	a.SetSpeed(30)
	a.SetSpeed(30)

	if len(w.writes) != 2 || w.writes[0] != w.writes[1] {
		t.Errorf("writes: got %+v, want two identical writes", w.writes)
	}
	if a.Percent() != 30 {
		t.Errorf("Percent: got %d, want 30", a.Percent())
	}
}

func TestFanActuatorWriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("sysfs gone")}
	a := NewFanActuator(w, 0, 255)

	applied, err := a.SetSpeed(120)
	if err == nil {
		t.Fatal("expected error from writer")
	}
	if !errors.Is(err, w.err) {
		t.Errorf("error should wrap writer error: %v", err)
	}
	if applied != 100 || a.Percent() != 100 {
		t.Errorf("applied %d stored %d, want 100", applied, a.Percent())
	}
}
