package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/currybot/internal/config"
)

// newRootCmd creates the root currybot command with all subcommands attached.
// Without a subcommand it behaves like "currybot run".
func newRootCmd() *cobra.Command {
	var configPath string

	runCmd := newRunCmd(&configPath)
	cmd := &cobra.Command{
		Use:           "currybot",
		Short:         "Discord soundboard bot",
		Long:          "currybot plays audio clips in a voice channel when a chat message matches a trigger.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runCmd.RunE,
	}
	cmd.SetVersionTemplate("currybot {{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	cmd.AddCommand(
		runCmd,
		newCatalogCmd(),
		newStatsCmd(&configPath),
	)
	return cmd
}

// loadConfig loads the configuration file and turns a missing file into a
// hint for first-time users.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return cfg, err
}
