package main

import (
	"github.com/agusx1211/hitlctl/setup"
	"github.com/spf13/cobra"
)

func newSetupCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create or update the config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Run(cfgPath(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
