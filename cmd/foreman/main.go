// Command foreman supervises a fleet of coding-agent tmux sessions
// under a two-level chain of command, with an HTTP control API and a
// terminal dashboard mirroring the same state.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit is a sentinel returned by RunE functions to signal a non-zero
// exit after the command has already written its own error to stderr.
var errExit = errors.New("exit")

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

var configFlag string

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "foreman",
		Short:         "foreman — supervisor for a fleet of coding-agent sessions",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				fmt.Fprintf(stderr, "foreman: unknown command %q\n", args[0]) //nolint:errcheck // best-effort stderr
				return errExit
			}
			return runDashboard(stdout, stderr)
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to config.toml (default: <config dir>/foreman/config.toml)")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newSpawnCmd(stdout, stderr),
		newListCmd(stdout, stderr),
		newKillCmd(stdout, stderr),
		newManagerCmd(stdout, stderr),
	)
	return root
}
