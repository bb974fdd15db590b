package showconfig

import (
	"github.com/spf13/cobra"
	"github.com/sweeney/fan-controller/internal/config"
)

// Command prints the effective configuration, defaults included, as YAML.
func Command(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return cfg.Encode(cmd.OutOrStdout())
		},
	}
}
