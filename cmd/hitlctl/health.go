package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the agent runtime answers and list its assistants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath())
			if err != nil {
				return err
			}
			client, dialer, err := newClient(cfg)
			if err != nil {
				return err
			}
			if dialer != nil {
				defer dialer.Close()
			}
			out := cmd.OutOrStdout()
			if !client.HealthCheck(cmd.Context()) {
				return fmt.Errorf("runtime %s is unreachable", client.BaseURL())
			}
			fmt.Fprintf(out, "runtime %s: ok\n", client.BaseURL())
			assistants, err := client.ListAssistants(cmd.Context())
			if err != nil {
				return err
			}
			for _, a := range assistants {
				mark := " "
				if a.AssistantID == cfg.Runtime.AssistantID || a.GraphID == cfg.Runtime.AssistantID {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s\t%s\t%s\n", mark, a.AssistantID, a.GraphID, a.Name)
			}
			return nil
		},
	}
}
