package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"relaybus-core/internal/config/source"
)

func newCheckConfigCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate and print the effective configuration",
		Long: `Load configuration from all sources, validate it and print the merged
result as YAML. Secrets are masked.

Example:
  relaybus check-config -c /etc/relaybus/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if path := source.FindConfigFile(*configFile); path != "" {
				fmt.Fprintf(out, "# config file: %s\n", path)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
