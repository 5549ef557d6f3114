package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foreman-hq/foreman/internal/api"
	"github.com/foreman-hq/foreman/internal/supervisor"
)

func newManagerCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manager",
		Short: "Run or attach to the root Executive Assistant session",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}
	cmd.AddCommand(newManagerStartCmd(stdout, stderr), newManagerOrchestrateCmd(stdout, stderr))
	return cmd
}

// newManagerStartCmd runs the headless tick loop (refresh on a fixed
// interval) plus, when enabled, the HTTP control API, until SIGINT/SIGTERM.
func newManagerStartCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the supervisor tick loop and HTTP API in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if runManagerStart(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func runManagerStart(stdout, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		printErr(stderr, "foreman manager start: %v", err)
		return 1
	}
	sup, store, err := buildSupervisorAndStore(cfg)
	if err != nil {
		printErr(stderr, "foreman manager start: %v", err)
		return 1
	}
	if err := sup.Refresh(); err != nil {
		printErr(stderr, "foreman manager start: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var srv *http.Server
	if cfg.APIEnabled() {
		h := api.NewHandlers(sup, store, cfg.Dashboard.SessionPrefix)
		router := api.SetupRouter(h, false)
		srv = &http.Server{
			Addr:              cfg.API.Host + ":" + strconv.Itoa(cfg.API.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				printErr(stderr, "foreman manager start: api server: %v", err)
			}
		}()
		fmt.Fprintf(stdout, "foreman: API listening on %s\n", srv.Addr) //nolint:errcheck // best-effort stdout
	}

	interval := time.Duration(cfg.Dashboard.RefreshIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fmt.Fprintln(stdout, "foreman: manager started") //nolint:errcheck // best-effort stdout
loop:
	for {
		select {
		case <-ticker.C:
			if err := sup.Refresh(); err != nil {
				printErr(stderr, "foreman manager start: refresh: %v", err)
			}
		case <-ctx.Done():
			break loop
		}
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	sup.Shutdown()
	return 0
}

// newManagerOrchestrateCmd attaches the caller's terminal to the root
// Executive Assistant session in the foreground, blocking until detach.
func newManagerOrchestrateCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrate",
		Short: "Attach the terminal to the root Executive Assistant session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				printErr(stderr, "foreman manager orchestrate: %v", err)
				return errExit
			}
			sup, err := buildSupervisor(cfg)
			if err != nil {
				printErr(stderr, "foreman manager orchestrate: %v", err)
				return errExit
			}
			if err := sup.Refresh(); err != nil {
				printErr(stderr, "foreman manager orchestrate: %v", err)
				return errExit
			}

			attachCmd, err := sup.Attach(rootSessionName, supervisor.AttachBlocking)
			if err != nil {
				printErr(stderr, "foreman manager orchestrate: %v", err)
				return errExit
			}
			attachCmd.Stdin = os.Stdin
			attachCmd.Stdout = stdout
			attachCmd.Stderr = stderr
			if err := attachCmd.Run(); err != nil {
				printErr(stderr, "foreman manager orchestrate: %v", err)
				return errExit
			}
			return nil
		},
	}
}
