package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/foreman-hq/foreman/internal/supervisor"
)

func newKillCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <name>",
		Short: "Kill an owned agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				printErr(stderr, "foreman kill: %v", err)
				return errExit
			}
			sup, err := buildSupervisor(cfg)
			if err != nil {
				printErr(stderr, "foreman kill: %v", err)
				return errExit
			}
			if err := sup.Refresh(); err != nil {
				printErr(stderr, "foreman kill: %v", err)
				return errExit
			}

			name := args[0]
			if err := sup.Kill(name); err != nil {
				switch {
				case errors.Is(err, supervisor.ErrRootProtected):
					printErr(stderr, "foreman kill: cannot kill the reserved root session")
				case errors.Is(err, supervisor.ErrNotFound):
					printErr(stderr, "foreman kill: %q is not an owned session", name)
				default:
					printErr(stderr, "foreman kill: %v", err)
				}
				return errExit
			}
			return nil
		},
	}
}
