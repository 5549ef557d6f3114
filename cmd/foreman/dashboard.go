package main

import (
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/foreman-hq/foreman/internal/config"
	"github.com/foreman-hq/foreman/internal/dashboard"
	"github.com/foreman-hq/foreman/internal/tmux"
)

// runDashboard is the bare (no-subcommand) entry point. If the caller is
// not already inside a multiplexer session, it re-executes itself inside
// the reserved dashboard session — a blocking foreground attach — so the
// TUI survives terminal disconnects the same way an agent session does.
// Once inside a session, it runs the bubbletea program directly.
func runDashboard(stdout, stderr io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		printErr(stderr, "foreman: %v", err)
		return errExit
	}

	if os.Getenv("TMUX") == "" {
		return reexecUnderDashboardSession(cfg, stdout, stderr)
	}

	sup, err := buildSupervisor(cfg)
	if err != nil {
		printErr(stderr, "foreman: %v", err)
		return errExit
	}
	if err := sup.Refresh(); err != nil {
		printErr(stderr, "foreman: %v", err)
		return errExit
	}
	defer sup.Shutdown()

	interval := time.Duration(cfg.Dashboard.RefreshIntervalSeconds) * time.Second
	model := dashboard.New(sup, interval)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		printErr(stderr, "foreman: %v", err)
		return errExit
	}
	return nil
}

// reexecUnderDashboardSession creates (if needed) the reserved dashboard
// session running this same executable, then blocks attached to it.
func reexecUnderDashboardSession(cfg config.Config, stdout, stderr io.Writer) error {
	name := dashboardSessionName(cfg)
	tm := tmux.NewClient()

	if !tm.HasSession(name) {
		exe, err := os.Executable()
		if err != nil {
			printErr(stderr, "foreman: %v", err)
			return errExit
		}
		workdir, _ := os.Getwd()
		if err := tm.NewSession(name, exe, workdir); err != nil {
			printErr(stderr, "foreman: starting dashboard session: %v", err)
			return errExit
		}
	}

	attachCmd := tm.AttachCmd(name)
	attachCmd.Stdin = os.Stdin
	attachCmd.Stdout = stdout
	attachCmd.Stderr = stderr
	if err := attachCmd.Run(); err != nil {
		printErr(stderr, "foreman: %v", err)
		return errExit
	}
	return nil
}
