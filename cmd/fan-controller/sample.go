package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/sweeney/fan-controller/internal/gpio"
	"github.com/sweeney/fan-controller/internal/logic"
)

func sampleCommand() *cobra.Command {
	var speed int

	c := &cobra.Command{
		Use:   "sample",
		Short: "Measure one window on every fan, print the speeds and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cpath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("speed") {
				for i := range cfg.Channels {
					cfg.Channels[i].InitialDuty = speed
				}
			}

			log := newLogger(cfg.Debug)

			r, err := openRig(cfg, dummy, gpio.Watch, log)
			if err != nil {
				return err
			}
			defer r.Close()

			var longest time.Duration
			for _, ch := range cfg.Channels {
				longest = max(longest, ch.Window.Duration)
			}

			ticker := time.NewTicker(cfg.LoopPeriod.Duration)
			defer ticker.Stop()

			samples := collectSamples(r.ctrl, r.clock, ticker.C, time.After(2*longest+time.Second))
			printSamples(cmd.OutOrStdout(), r.ctrl.Snapshot(), samples)
			return nil
		},
	}
	c.Flags().IntVarP(&speed, "speed", "s", 0, "Drive every fan at this percentage while sampling")
	return c
}

// collectSamples advances ctrl on every tick until each channel has closed
// one window or timeout fires.
func collectSamples(ctrl *logic.ControllerState, clock logic.Clock, tick <-chan time.Time, timeout <-chan time.Time) map[string]logic.Sample {
	samples := make(map[string]logic.Sample, len(ctrl.IDs()))
	for len(samples) < len(ctrl.IDs()) {
		select {
		case <-timeout:
			return samples
		case <-tick:
			for _, s := range ctrl.Advance(clock.Now()) {
				if _, ok := samples[s.Channel]; !ok {
					samples[s.Channel] = s
				}
			}
		}
	}
	return samples
}

func printSamples(w io.Writer, fans []logic.ChannelState, samples map[string]logic.Sample) {
	for _, f := range fans {
		s, ok := samples[f.ID]
		if !ok {
			fmt.Fprintf(w, "%-10s no sample (speed %d%%)\n", f.ID+":", f.DutyPercent)
			continue
		}
		fmt.Fprintf(w, "%-10s %5d RPM (speed %3d%%, %d pulses in %v)\n", f.ID+":", s.RPM, f.DutyPercent, s.Pulses, s.Elapsed)
	}
}
