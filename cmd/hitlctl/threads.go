package main

import (
	"errors"
	"fmt"

	"github.com/agusx1211/hitlctl/render"
	"github.com/agusx1211/hitlctl/store"
	"github.com/spf13/cobra"
)

func openStore(cfgPath string) (*store.SQLiteStore, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return st, nil
}

func newThreadsCmd(cfgPath func() string) *cobra.Command {
	var (
		limit      int
		offset     int
		formatFlag string
	)
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List stored threads, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("--limit must be greater than zero")
			}
			st, err := openStore(cfgPath())
			if err != nil {
				return err
			}
			defer st.Close()
			threads, err := st.Threads.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return render.WriteThreads(cmd.OutOrStdout(), threads, formatFlag)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&limit, "limit", 50, "maximum number of threads listed")
	flags.IntVar(&offset, "offset", 0, "number of threads skipped")
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, or json")

	cmd.AddCommand(newThreadShowCmd(cfgPath))
	cmd.AddCommand(newThreadDeleteCmd(cfgPath))
	return cmd
}

func newThreadShowCmd(cfgPath func() string) *cobra.Command {
	var forceColor, forceNoColor bool
	cmd := &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print the stored conversation of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceColor && forceNoColor {
				return errors.New("--color and --no-color cannot be used together")
			}
			st, err := openStore(cfgPath())
			if err != nil {
				return err
			}
			defer st.Close()
			t, err := st.Threads.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("thread %s not found", args[0])
				}
				return err
			}
			entries, err := st.LoadEntries(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := render.NewPrinter(out, render.Width(out), resolveColorChoice(out, forceColor, forceNoColor))
			if t.Title != "" {
				p.Line("# %s", t.Title)
			}
			p.Entries(entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&forceColor, "color", false, "force colored output")
	cmd.Flags().BoolVar(&forceNoColor, "no-color", false, "disable colored output")
	return cmd
}

func newThreadDeleteCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete the stored history of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cfgPath())
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Threads.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
