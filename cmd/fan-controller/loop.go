package main

import (
	"os"
	"syscall"
	"time"

	"github.com/mdouchement/logger"
	"github.com/sweeney/fan-controller/internal/command"
	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/mqtt"
	"github.com/sweeney/fan-controller/internal/status"
)

// loop is the single cooperative main context. It is the only caller of
// Advance and the only writer of actuators once the daemon is running.
type loop struct {
	ctrl       *logic.ControllerState
	clock      logic.Clock
	queue      *command.Queue
	publisher  mqtt.Publisher        // nil when MQTT is disabled
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is disabled
	tracker    *status.Tracker
	heartbeat  time.Duration // 0 disables
	now        func() time.Time
	log        logger.Logger

	lastHeartbeat time.Time
}

// startup publishes the retained STARTUP event with a full status snapshot.
func (l *loop) startup() {
	l.lastHeartbeat = l.now()
	if l.publisher == nil {
		return
	}

	l.refreshMQTT()
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.WithError(err).Error("Could not publish startup event")
	} else {
		l.log.Info("published startup event")
	}
}

// run serves ticks until a signal arrives, then publishes SHUTDOWN.
func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal) {
	if l.lastHeartbeat.IsZero() {
		l.lastHeartbeat = l.now()
	}

	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return
		case <-tick:
			l.step()
		}
	}
}

// step runs one iteration: sample every channel, apply at most one queued
// speed change, refresh the status view.
func (l *loop) step() {
	samples := l.ctrl.Advance(l.clock.Now())

	if res, ok := l.queue.ServeOne(l.ctrl); ok {
		if res.Err != nil {
			l.log.WithError(res.Err).Errorf("Could not set %s speed to %d%%", res.Channel, res.Requested)
		} else if res.Applied != res.Requested {
			l.log.Warnf("%s: speed %d%% clamped to %d%%", res.Channel, res.Requested, res.Applied)
		} else {
			l.log.Infof("%s: speed %d%%", res.Channel, res.Applied)
		}
	}

	fans := l.ctrl.Snapshot()
	l.tracker.Update(fans)
	l.refreshMQTT()

	if l.publisher != nil && len(samples) > 0 {
		t := l.now()
		for _, s := range samples {
			fan, ok := stateOf(fans, s.Channel)
			if !ok {
				continue
			}
			if s.Stretched {
				l.log.Warnf("%s: sampling window stretched to %v", s.Channel, s.Elapsed)
			}
			err := l.publisher.PublishState(mqtt.StateEvent{
				Timestamp: t,
				Fan:       fan,
				Stretched: s.Stretched,
			})
			if err != nil {
				// Don't crash on publish failure
				l.log.WithError(err).Errorf("Could not publish %s state", s.Channel)
			}
		}
	}

	l.checkHeartbeat()
}

// backlog is implemented by publishers that buffer while the broker is away.
type backlog interface {
	Buffered() int
}

func (l *loop) checkHeartbeat() {
	if l.heartbeat <= 0 || l.publisher == nil {
		return
	}
	t := l.now()
	if t.Sub(l.lastHeartbeat) < l.heartbeat {
		return
	}
	l.lastHeartbeat = t

	// Refresh network info for heartbeat
	if net := readNetworkInfo(); net != nil {
		l.tracker.SetNetwork(net)
	}
	snap := l.tracker.Snapshot()
	l.log.Infof("heartbeat: uptime=%v fans=%d ready=%t", snap.Uptime().Truncate(time.Second), len(snap.Fans), snap.Ready())
	if b, ok := l.publisher.(backlog); ok {
		if n := b.Buffered(); n > 0 {
			l.log.Warnf("heartbeat: %d mqtt messages waiting for the broker", n)
		}
	}

	event := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.WithError(err).Error("Could not publish heartbeat")
	}
}

func (l *loop) shutdown(s os.Signal) {
	l.log.Infof("received %v, shutting down", s)
	if l.publisher == nil {
		return
	}

	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}

	l.refreshMQTT()
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      "SHUTDOWN",
		Reason:     signalName,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.log.WithError(err).Error("Could not publish shutdown event")
	} else {
		l.log.Info("published shutdown event")
	}
}

func (l *loop) refreshMQTT() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func stateOf(fans []logic.ChannelState, id string) (logic.ChannelState, bool) {
	for _, f := range fans {
		if f.ID == id {
			return f, true
		}
	}
	return logic.ChannelState{}, false
}
