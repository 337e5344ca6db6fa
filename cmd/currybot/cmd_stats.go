package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MrWong99/currybot/internal/app"
	"github.com/MrWong99/currybot/internal/stats"
)

// storeOpener opens the stats backend for a single command run.
type storeOpener func(ctx context.Context) (stats.Store, error)

// newStatsCmd creates the "currybot stats" subcommand. It opens the stats
// backend named in the configuration file.
func newStatsCmd(configPath *string) *cobra.Command {
	return newStatsCmdWithOpener(func(ctx context.Context) (stats.Store, error) {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		return app.OpenStats(ctx, cfg.Stats)
	})
}

// newStatsCmdWithOpener creates the "currybot stats" subcommand reading from
// the store returned by open. The store is closed when the command ends.
func newStatsCmdWithOpener(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [user-id]",
		Short: "Print play counts",
		Long: "Print the durable play count table. With a user ID, print the same\n" +
			"report the bot replies with for that user.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer store.Close()

			table, err := store.Snapshot(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			if len(args) == 1 {
				fmt.Fprintln(cmd.OutOrStdout(), stats.Report(table, args[0]))
				return nil
			}
			printTable(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

// printTable writes every user with their total and per-trigger counts,
// users and triggers sorted.
func printTable(w io.Writer, t stats.Table) {
	if len(t) == 0 {
		fmt.Fprintln(w, "no plays recorded")
		return
	}
	for _, user := range slices.Sorted(maps.Keys(t)) {
		fmt.Fprintf(w, "%s (%d)\n", user, t.Total(user))
		row := t[user]
		for _, trigger := range slices.Sorted(maps.Keys(row)) {
			fmt.Fprintf(w, "  %s: %d\n", trigger, row[trigger])
		}
	}
}
