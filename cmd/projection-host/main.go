// Command projection-host runs the client-side runtime of a
// server-driven UI: it speaks the framed stdio protocol to a remote
// controller and renders whatever view-model that controller sends
// to a terminal UI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/projection-ui/host/internal/hostconfig"
	"github.com/projection-ui/host/internal/logger"
	"github.com/projection-ui/host/internal/session"
	"github.com/projection-ui/host/internal/toolkit/tui"
)

const defaultQueueCap = 256

func main() {
	root := &cobra.Command{
		Use:   "projection-host",
		Short: "client-side runtime for a server-driven UI",
		RunE:  run,
	}

	root.Flags().String("sid", "", "session id (defaults to $PROJECTION_SID, then \"S1\")")
	root.Flags().Int("queue-cap", 0, "outbound intent queue capacity (defaults to $PROJECTION_UI_OUTBOUND_QUEUE_CAP, then 256)")
	root.Flags().String("log-level", "info", "log level: debug, info, warn, error")
	root.Flags().String("log-file", "", "optional log file path, in addition to stderr")
	root.Flags().String("config", "", "optional presentation config YAML path")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFile, _ := cmd.Flags().GetString("log-file")
	if err := logger.Init(logLevel, logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	sid, _ := cmd.Flags().GetString("sid")
	if sid == "" {
		sid = os.Getenv("PROJECTION_SID")
	}
	if sid == "" {
		sid = "S1"
	}

	queueCap, _ := cmd.Flags().GetInt("queue-cap")
	if queueCap == 0 {
		queueCap = queueCapFromEnv()
	} else if queueCap < 1 {
		logger.Warn("invalid --queue-cap, using default", "value", queueCap, "default", defaultQueueCap)
		queueCap = defaultQueueCap
	}

	binding := tui.New()
	defer binding.Close()

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		watcher, err := hostconfig.WatchFile(configPath, func(hostconfig.Config) {
			// Presentation-only: theme changes never touch protocol
			// state, so there is nothing further to wire here yet
			// beyond accepting the live-reloaded config.
		})
		if err != nil {
			logger.Warn("presentation config watcher failed to start", "err", err)
		} else {
			defer watcher.Close()
		}
	}

	core := session.NewCore(sid, binding, queueCap)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("projection-host starting", "sid", sid, "queue_cap", queueCap)
	return core.Run(ctx, os.Stdin, os.Stdout)
}

func queueCapFromEnv() int {
	raw := os.Getenv("PROJECTION_UI_OUTBOUND_QUEUE_CAP")
	if raw == "" {
		return defaultQueueCap
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logger.Warn("invalid PROJECTION_UI_OUTBOUND_QUEUE_CAP, using default", "value", raw, "default", defaultQueueCap)
		return defaultQueueCap
	}
	return n
}
