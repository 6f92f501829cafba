package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.1.0"

const defaultConfigPath = "~/.hitlctl/config.yaml"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "hitlctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "hitlctl",
		Short:         "Drive human-in-the-loop agent sessions from the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("hitlctl {{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to config file (.json or .yaml)")

	cfgPath := func() string { return configPath }
	root.AddCommand(newChatCmd(cfgPath))
	root.AddCommand(newServeCmd(cfgPath))
	root.AddCommand(newThreadsCmd(cfgPath))
	root.AddCommand(newHealthCmd(cfgPath))
	root.AddCommand(newSetupCmd(cfgPath))
	return root
}
