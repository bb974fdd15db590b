// Command fanctl talks to a running fan-controller.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/sweeney/fan-controller/cmd/fanctl/monitor"
	"github.com/sweeney/fan-controller/internal/client"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		c       *client.Client
	)

	cmd := &cobra.Command{
		Use:     "fanctl",
		Short:   "A ctl use to interact with fan-controller",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if env := os.Getenv("FANCTL_ADDR"); env != "" && addr == client.DefaultAddr {
				addr = env
			}
			c = client.New(addr, timeout)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&addr, "addr", "a", client.DefaultAddr, "fan-controller address (or FANCTL_ADDR)")
	cmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Request timeout")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show fan speeds and daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, f := range st.Fans {
				fmt.Fprintf(w, "%-10s %5d RPM (%3d%%)  %s\n", f.ID, f.RPM, f.Speed, f.Label)
			}
			fmt.Fprintf(w, "uptime %v, ready %t, mqtt connected %t\n",
				time.Duration(st.UptimeSeconds)*time.Second, st.Ready, st.MQTT.Connected)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <channel> <percent>",
		Short: "Set a fan speed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			percent, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("percent: %w", err)
			}

			applied, err := c.SetSpeed(cmd.Context(), args[0], percent)
			if err != nil {
				return err
			}
			if applied != percent {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d%% (clamped from %d%%)\n", args[0], applied, percent)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d%%\n", args[0], applied)
			return nil
		},
	})
	cmd.AddCommand(monitor.Command(func() monitor.Source { return c }))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for fanctl",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	return cmd
}
