package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CliForge/dbauth/pkg/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	var pathOnly bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration dbauth runs with, after applying the config
file and DBAUTH_* environment overrides to the defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(config.DefaultAppName)
			if opts.configPath != "" {
				loader.WithConfigPath(opts.configPath)
			}
			if pathOnly {
				fmt.Fprintln(cmd.OutOrStdout(), loader.ConfigPath())
				return nil
			}

			out, err := opts.config.YAML()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", loader.ConfigPath(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pathOnly, "path", false, "Only print the config file path")

	return cmd
}
