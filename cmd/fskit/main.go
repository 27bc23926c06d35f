// Package main provides the fskit CLI application.
//
// fskit watches directory trees and prints typed file-system events, keeps
// a per-root journal of what it delivered and exposes engine metrics.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions holds flags shared by every command.
type globalOptions struct {
	configPath string
}

// newRootCmd builds the command tree writing to stdout and stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "fskit",
		Short: "Watch file-system trees and report typed change events",
		Long: `fskit - recursive file-system watcher

Watches files and directory trees through fsnotify (or polling where
notifications are unavailable), delivers created/modified/deleted events
in order per root and records them in a journal that survives restarts.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default ./fskit.yaml, then ~/.config/fskit/config.yaml)")

	root.AddCommand(
		newWatchCmd(opts),
		newHistoryCmd(opts),
		newLinesCmd(),
		newCopyCmd(),
		newConfigCmd(opts),
	)

	return root
}
