package gpio

import (
	"sync"
	"time"
)

// Simulator synthesizes tachometer edges for a fan whose speed follows its
// duty cycle linearly up to MaxRPM. It backs the daemon's dummy mode.
type Simulator struct {
	maxRPM       float64
	pulsesPerRev float64
	duty         func() int
	handler      EdgeHandler

	acc  float64
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewSimulator creates a simulator reading the current duty percentage from duty.
func NewSimulator(maxRPM, pulsesPerRev float64, duty func() int, h EdgeHandler) *Simulator {
	return &Simulator{
		maxRPM:       maxRPM,
		pulsesPerRev: pulsesPerRev,
		duty:         duty,
		handler:      h,
		stop:         make(chan struct{}),
	}
}

// Start emits edges every step until Close.
func (s *Simulator) Start(step time.Duration) {
	origin := time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(step)
		defer ticker.Stop()

		prev := time.Duration(0)
		for {
			select {
			case <-s.stop:
				return
			case t := <-ticker.C:
				now := t.Sub(origin)
				s.Advance(prev, now)
				prev = now
			}
		}
	}()
}

// Advance emits the edges a fan at the current duty produces between from
// and to, spread evenly over the interval.
func (s *Simulator) Advance(from, to time.Duration) int {
	if to <= from {
		return 0
	}

	rpm := s.maxRPM * float64(s.duty()) / 100
	s.acc += rpm * s.pulsesPerRev / 60 * (to - from).Seconds()

	n := int(s.acc)
	s.acc -= float64(n)

	for i := 0; i < n; i++ {
		s.handler(from + (to-from)*time.Duration(i+1)/time.Duration(n))
	}
	return n
}

// Close stops the simulator and waits for the emitting goroutine.
func (s *Simulator) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}
