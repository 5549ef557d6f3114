package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/foreman-hq/foreman/internal/supervisor"
)

func newSpawnCmd(stdout, stderr io.Writer) *cobra.Command {
	var name, command, workdir, task, role, parent string

	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a new owned agent session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				printErr(stderr, "foreman spawn: %v", err)
				return errExit
			}
			sup, err := buildSupervisor(cfg)
			if err != nil {
				printErr(stderr, "foreman spawn: %v", err)
				return errExit
			}
			if err := sup.Refresh(); err != nil {
				printErr(stderr, "foreman spawn: %v", err)
				return errExit
			}

			res, err := sup.Spawn(supervisor.SpawnRequest{
				Name:    name,
				Command: command,
				Workdir: workdir,
				Task:    task,
				Role:    supervisor.Role(role),
				Parent:  parent,
			})
			if err != nil {
				if errors.Is(err, supervisor.ErrNameConflict) {
					printErr(stderr, "foreman spawn: %q already exists", name)
				} else {
					printErr(stderr, "foreman spawn: %v", err)
				}
				return errExit
			}
			fmt.Fprintf(stdout, "%s\n", res.ShortName) //nolint:errcheck // best-effort stdout
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "short name (auto-generated if omitted)")
	cmd.Flags().StringVar(&command, "command", "", "command to run (default: configured agent.default_command)")
	cmd.Flags().StringVar(&workdir, "workdir", "", "working directory (default: configured agent.default_workdir)")
	cmd.Flags().StringVar(&task, "task", "", "task text to inject after the session settles")
	cmd.Flags().StringVar(&role, "role", "", "project-manager or worker (default: worker)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent session name (auto-inferred if omitted and exactly one PM is live)")

	return cmd
}
