package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/tidalflow/internal/config"
)

// NewConfigCommand builds the config subcommand.
func NewConfigCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			rendered, err := cfg.Render()
			if err != nil {
				return err
			}

			fmt.Print(rendered)

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")

	return cmd
}
