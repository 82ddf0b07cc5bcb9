package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/deferrun/pkg/clock"
	"github.com/cuemby/deferrun/pkg/config"
	"github.com/cuemby/deferrun/pkg/history"
	"github.com/cuemby/deferrun/pkg/log"
	"github.com/cuemby/deferrun/pkg/metrics"
	"github.com/cuemby/deferrun/pkg/monitor"
	"github.com/cuemby/deferrun/pkg/statusstore"
	"github.com/cuemby/deferrun/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "deferctl",
	Short: "Inspect and operate on a deferrun task directory",
	Long: `deferctl operates on a deferrun task directory from outside a
running process: listing tasks, reading a single task's status, tailing
the background log, cleaning up terminal records, and serving the
Prometheus exporter standalone.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("deferctl version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveMetricsCmd)
	rootCmd.AddCommand(historyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	cfg := config.Default()
	var filePath string
	if cfg.Logging.Enabled {
		filePath = filepath.Join(cfg.Logging.Directory, "background_tasks.log")
	}
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
		FilePath:   filePath,
	})
}

func openStore() (*statusstore.Store, error) {
	cfg := config.Default()
	return statusstore.New(cfg.StatusDir(), clock.Default)
}

var statusCmd = &cobra.Command{
	Use:   "status TASK_ID",
	Short: "Show a single task's status record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return fmt.Errorf("open status store: %w", err)
		}
		defer store.Close()

		status, err := store.Read(types.TaskID(args[0]))
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}
		printStatus(status)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return fmt.Errorf("open status store: %w", err)
		}
		defer store.Close()

		statuses, err := store.List()
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(statuses) == 0 {
			fmt.Println("No tasks found")
			return nil
		}

		fmt.Printf("%-40s %-14s %-10s %s\n", "TASK ID", "STATUS", "PID", "UPDATED")
		for _, st := range statuses {
			fmt.Printf("%-40s %-14s %-10d %s\n", truncate(string(st.TaskID), 40), st.Status, st.PID, st.UpdatedAt)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove terminal status records and orphaned worker scripts older than --max-age",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge, _ := cmd.Flags().GetDuration("max-age")
		cfg := config.Default()

		store, err := openStore()
		if err != nil {
			return fmt.Errorf("open status store: %w", err)
		}
		defer store.Close()

		removed, err := store.Cleanup(maxAge, cfg.ScriptsDir())
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Printf("✓ Removed %d file(s) (terminal status records and orphaned worker scripts)\n", removed)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the last N lines of background_tasks.log",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("tail")
		cfg := config.Default()
		path := filepath.Join(cfg.Logging.Directory, "background_tasks.log")

		lines, err := log.Tail(path, n)
		if err != nil {
			return fmt.Errorf("tail log: %w", err)
		}
		for _, l := range lines {
			fmt.Printf("[%s] [%s] [%s] %s\n", l.Timestamp, l.Level, l.Scope, l.Message)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch TASK_ID",
	Short: "Follow a task until it reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		store, err := openStore()
		if err != nil {
			return fmt.Errorf("open status store: %w", err)
		}
		defer store.Close()

		onProgress := func(status *types.TaskStatus) {
			fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), status.TaskID, status.Status)
		}
		sink := func(taskID types.TaskID, chunk string) {
			fmt.Print(chunk)
		}

		status, err := monitor.Monitor(context.Background(), store, nil, nil, types.TaskID(args[0]), timeout, onProgress, sink)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		printStatus(status)
		return nil
	},
}

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve the Prometheus exporter standalone, polling the status store on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		cfg := config.Default()

		store, err := openStore()
		if err != nil {
			return fmt.Errorf("open status store: %w", err)
		}
		defer store.Close()

		collector := metrics.NewCollector(store)
		collector.Start(interval)
		defer collector.Stop()

		addr := cfg.Metrics.ListenAddress
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())

		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", addr)
		return http.ListenAndServe(addr, mux)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the archived history of terminal tasks",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived task statuses",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")
		cfg := config.Default()

		store, err := history.NewBoltStore(cfg.History.Directory)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer store.Close()

		var statuses []*types.TaskStatus
		if since > 0 {
			statuses, err = store.ListSince(time.Now().Add(-since).Unix())
		} else {
			statuses, err = store.List()
		}
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}

		if len(statuses) == 0 {
			fmt.Println("No archived tasks found")
			return nil
		}
		fmt.Printf("%-40s %-14s %s\n", "TASK ID", "STATUS", "UPDATED")
		for _, st := range statuses {
			fmt.Printf("%-40s %-14s %s\n", truncate(string(st.TaskID), 40), st.Status, st.UpdatedAt)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Duration("max-age", 24*time.Hour, "Remove terminal records older than this")
	logsCmd.Flags().Int("tail", 50, "Number of log lines to show")
	watchCmd.Flags().Duration("timeout", 0, "Give up after this long (0 = wait forever)")
	serveMetricsCmd.Flags().Duration("interval", 5*time.Second, "Status-store poll interval")
	historyListCmd.Flags().Duration("since", 0, "Only show tasks completed within this long ago (0 = all)")
	historyCmd.AddCommand(historyListCmd)
}

func printStatus(status *types.TaskStatus) {
	fmt.Printf("Task:      %s\n", status.TaskID)
	fmt.Printf("  Status:    %s\n", status.Status)
	fmt.Printf("  Message:   %s\n", status.Message)
	fmt.Printf("  PID:       %d\n", status.PID)
	fmt.Printf("  Created:   %s\n", status.CreatedAt)
	fmt.Printf("  Updated:   %s\n", status.UpdatedAt)
	if status.Output != "" {
		suffix := ""
		if status.ResultTruncated {
			suffix = " (truncated)"
		}
		fmt.Printf("  Output:    %s%s\n", status.Output, suffix)
	}
	if status.ErrorMessage != "" {
		fmt.Printf("  Error:     %s (%s:%d)\n", status.ErrorMessage, status.ErrorFile, status.ErrorLine)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
