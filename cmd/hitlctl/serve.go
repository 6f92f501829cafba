package main

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/spf13/cobra"
)

func newServeCmd(cfgPath func() string) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operator relay without a local terminal session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath())
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Relay.Listen = listen
			}
			deps, err := buildDeps(cfg, true)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), deps, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override relay.listen")
	return cmd
}

func serve(parent context.Context, deps *runtimeDeps, errOut io.Writer) error {
	must(deps.relay != nil, "serve requires a relay")
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	defer shutdown(deps, cancel, &wg, errOut)
	watchSignals(ctx, cancel, errOut)

	err := deps.relay.Start(ctx)
	if err != nil {
		log.Printf("[hitlctl] relay stopped: %v", err)
	}
	return err
}
