package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/roastd/internal/config"
)

func newConfigCmd(cfgPath *string) *cobra.Command {
	var skipValidate bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Merges defaults, the config file, .env and ROASTD_* environment variables
and prints the result with credentials masked. Exits non-zero when the merged
configuration does not validate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Effective(*cfgPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(settings)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			if skipValidate {
				return nil
			}
			if _, err := config.Load(*cfgPath); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipValidate, "no-validate", false, "print without validating")
	return cmd
}
