package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MrWong99/currybot/internal/catalog"
)

// newCatalogCmd creates the "currybot catalog" command group.
func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect trigger catalogs",
	}
	cmd.AddCommand(newCatalogCheckCmd())
	return cmd
}

// newCatalogCheckCmd creates the "currybot catalog check" subcommand.
func newCatalogCheckCmd() *cobra.Command {
	var audioDir string
	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate a catalog file and list its triggers",
		Long: "Parse a catalog file the same way the bot does and print every trigger\n" +
			"with its clip. With --audio-dir, clips that do not exist are reported too.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("catalog check: %w", err)
			}
			c, err := catalog.Parse(data)
			if err != nil {
				return fmt.Errorf("catalog check: %w", err)
			}

			out := cmd.OutOrStdout()
			var problems []error
			for _, e := range c.Entries() {
				fmt.Fprintf(out, "%s -> %s\n", e.Key, e.Clip)
				if audioDir == "" {
					continue
				}
				if err := checkClip(audioDir, e.Clip); err != nil {
					problems = append(problems, fmt.Errorf("%q: %w", e.Key, err))
				}
			}
			fmt.Fprintf(out, "%d triggers\n", c.Len())

			if err := errors.Join(problems...); err != nil {
				return fmt.Errorf("catalog check: %d clip(s) unusable:\n%w", len(problems), err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&audioDir, "audio-dir", "", "directory clips resolve under; enables file checks")
	return cmd
}

// checkClip reports whether clip resolves to a regular file under dir.
func checkClip(dir, clip string) error {
	if !filepath.IsLocal(clip) {
		return fmt.Errorf("clip %q escapes the audio directory", clip)
	}
	info, err := os.Stat(filepath.Join(dir, clip))
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("clip %q is not a regular file", clip)
	}
	return nil
}
