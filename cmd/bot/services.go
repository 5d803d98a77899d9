package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pricebot/internal/config"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

// The services commands work on the durable store only. A running bot
// reads the flag at startup; use the chat commands to toggle it live.
func newServicesCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Inspect and toggle stored worker flags",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored workers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd.Context(), f, func(ctx context.Context, st storage.Store) error {
					return listServices(ctx, st, cmd.OutOrStdout())
				})
			},
		},
		toggleCmd(f, "enable", true),
		toggleCmd(f, "disable", false),
	)
	return cmd
}

func toggleCmd(f *rootFlags, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <name>",
		Short: "Mark a stored worker as " + verb + "d",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), f, func(ctx context.Context, st storage.Store) error {
				if err := setStored(ctx, st, args[0], enabled); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %sd\n", args[0], verb)
				return err
			})
		},
	}
}

func withStore(parent context.Context, f *rootFlags, fn func(context.Context, storage.Store) error) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := config.LoadDotEnv(f.dotenv...); err != nil {
		return err
	}
	cfg, err := config.NewConfigManager(f.config).Load()
	if err != nil {
		return err
	}
	st, err := storage.Open(cfg.StoreConfig(), logx.Nop())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()
	return errors.Join(fn(ctx, st), st.Close())
}

func listServices(ctx context.Context, st storage.Store, w io.Writer) error {
	recs, err := st.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\n", r.ID, r.Name, r.Enabled, r.CreationTime.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func setStored(ctx context.Context, st storage.Store, name string, enabled bool) error {
	rec, err := st.FindByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no stored worker named %q", name)
	}
	if err != nil {
		return err
	}
	return st.UpdateEnabled(ctx, rec.ID, enabled)
}
