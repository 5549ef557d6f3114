package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List owned agent sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				printErr(stderr, "foreman list: %v", err)
				return errExit
			}
			sup, err := buildSupervisor(cfg)
			if err != nil {
				printErr(stderr, "foreman list: %v", err)
				return errExit
			}
			if err := sup.Refresh(); err != nil {
				printErr(stderr, "foreman list: %v", err)
				return errExit
			}

			for _, n := range sup.Tree() {
				indent := ""
				for i := 0; i < n.Depth; i++ {
					indent += "  "
				}
				fmt.Fprintf(stdout, "%s%s [%s]\n", indent, n.DisplayName, n.Health) //nolint:errcheck // best-effort stdout
			}
			return nil
		},
	}
}
