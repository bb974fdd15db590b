package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/sweeney/fan-controller/internal/status"
)

// Source returns the current fan states.
type Source interface {
	Fans(ctx context.Context) ([]status.FanJSON, error)
}

// Command polls source every interval and renders the fans in a table.
func Command(source func() Source) *cobra.Command {
	var interval time.Duration

	c := &cobra.Command{
		Use:   "monitor",
		Short: "Start the TUI monitor display",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := source()

			// Fail fast when the daemon is unreachable.
			fans, err := src.Fans(cmd.Context())
			if err != nil {
				return err
			}

			m := newTUI()
			m.update(fans)
			tui := tea.NewProgram(m, tea.WithAltScreen())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
					}

					fans, err := src.Fans(ctx)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						tui.Quit()
						fmt.Println("ERR:", err)
						os.Exit(1)
					}
					tui.Send(fans)
				}
			}()

			_, err = tui.Run()
			return err
		},
	}
	c.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Refresh interval")
	return c
}
