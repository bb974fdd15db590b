// Package command hands speed changes from the HTTP and MQTT goroutines to
// the main loop, which is the only writer of fan actuators.
package command

import (
	"context"
	"errors"
)

// DefaultSize bounds the number of requests waiting for the main loop.
const DefaultSize = 16

var ErrClosed = errors.New("command queue closed")

// Setter applies a speed change. logic.ControllerState satisfies it.
type Setter interface {
	SetChannelSpeed(id string, percent int) (int, error)
}

// Result is the outcome of one request.
type Result struct {
	Channel   string
	Requested int
	Applied   int
	Err       error
}

type request struct {
	channel string
	percent int
	reply   chan Result
}

// Queue is a bounded FIFO of speed requests.
type Queue struct {
	requests chan request
	done     chan struct{}
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	return &Queue{
		requests: make(chan request, size),
		done:     make(chan struct{}),
	}
}

// Submit enqueues a request and waits for the main loop to apply it. If ctx
// ends after the request was queued the change may still be applied.
func (q *Queue) Submit(ctx context.Context, channel string, percent int) (Result, error) {
	req := request{
		channel: channel,
		percent: percent,
		reply:   make(chan Result, 1),
	}

	select {
	case q.requests <- req:
	case <-q.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, res.Err
	case <-q.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// ServeOne applies at most one pending request without blocking.
func (q *Queue) ServeOne(s Setter) (Result, bool) {
	select {
	case req := <-q.requests:
		applied, err := s.SetChannelSpeed(req.channel, req.percent)
		res := Result{
			Channel:   req.channel,
			Requested: req.percent,
			Applied:   applied,
			Err:       err,
		}
		req.reply <- res
		return res, true
	default:
		return Result{}, false
	}
}

// Len returns the number of requests waiting.
func (q *Queue) Len() int {
	return len(q.requests)
}

// Close fails every waiting and future Submit. It must be called once.
func (q *Queue) Close() {
	close(q.done)
}
