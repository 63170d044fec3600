package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hutchd/hutch/pkg/config"
	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/metrics"
	"github.com/hutchd/hutch/pkg/run"
	"github.com/hutchd/hutch/pkg/storage"
	"github.com/hutchd/hutch/pkg/types"
	"github.com/hutchd/hutch/pkg/updater"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hutch",
	Short: "Hutch - Instance update and configuration migration engine",
	Long: `Hutch keeps a fleet of per-instance git checkouts current: it snapshots
each instance, advances its working copy, reconciles its env file against
the shipped template, runs migrations, and restores the service to its
prior run state. A failed instance never blocks the rest of the fleet.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Hutch version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the hutch config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(updateAllCmd)
	rootCmd.AddCommand(dryRunCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

// setup loads the config, initializes logging, and wires an Updater.
// The returned cleanup closes the history store and the session log.
func setup(cmd *cobra.Command) (*config.Config, *updater.Updater, func(), error) {
	configPath, _ := cmd.Flags().GetString("config")
	levelStr, _ := cmd.Flags().GetString("log-level")
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := log.Init(log.Config{
		Level:      log.Level(levelStr),
		JSONOutput: jsonOut,
		SessionDir: cfg.LogDir,
	}); err != nil {
		return nil, nil, nil, err
	}

	var history updater.History
	var store *storage.BoltStore
	store, err = storage.NewBoltStore(cfg.StatePath)
	if err != nil {
		// History is bookkeeping; an unreachable state path must not
		// block an update.
		logger := log.WithComponent("main")
		logger.Warn().Err(err).Msg("History store unavailable, continuing without it")
		store = nil
	} else {
		history = store
	}

	cleanup := func() {
		if store != nil {
			store.Close()
		}
		if path := log.SessionFile(); path != "" {
			fmt.Printf("\nSession log: %s\n", path)
		}
		log.Close()
	}
	return cfg, updater.New(cfg, run.NewExecRunner(), history), cleanup, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var updateCmd = &cobra.Command{
	Use:   "update INSTANCE",
	Short: "Update a single instance",
	Long: `Update one instance: snapshot, stop, sync the working copy, refresh
dependencies, reconcile the env file, run migrations, restart.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, u, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		rec, err := u.UpdateInstance(ctx, args[0])
		if err != nil {
			return err
		}

		switch rec.Status {
		case types.UpdateSkipped:
			fmt.Printf("✓ %s already up to date (%s)\n", rec.InstanceID, short(rec.CommitAfter))
		default:
			fmt.Printf("✓ %s updated: %s -> %s (config %s)\n",
				rec.InstanceID, short(rec.CommitBefore), short(rec.CommitAfter), rec.Decision)
		}
		return nil
	},
}

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Update every instance sequentially",
	Long: `Update every registered instance one after another, pausing between
instances. A failed instance is reported and skipped over; the command
exits non-zero if any instance failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, u, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			go func() {
				if err := http.ListenAndServe(addr, mux); err != nil {
					logger := log.WithComponent("main")
					logger.Warn().Err(err).Msg("Metrics listener stopped")
				}
			}()
			fmt.Printf("Serving metrics on %s/metrics\n", addr)
		}

		summary, err := u.UpdateAll(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\nBatch %s: %d total, %d updated, %d already current, %d failed\n",
			summary.SessionID, summary.Total, summary.Succeeded, summary.Skipped, summary.Failed)
		if summary.Failed > 0 {
			return fmt.Errorf("%d instance(s) failed", summary.Failed)
		}
		return nil
	},
}

var dryRunCmd = &cobra.Command{
	Use:   "dry-run [INSTANCE]",
	Short: "Preview what an update would do without changing anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, u, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		plans, err := u.DryRun(ctx, id)
		if err != nil {
			return err
		}

		for _, plan := range plans {
			fmt.Printf("%s (%s, branch %s)\n", plan.Instance, plan.Service, plan.Branch)
			switch {
			case plan.UpToDate():
				fmt.Printf("  up to date at %s\n", short(plan.Head))
			case len(plan.Behind) > 0:
				fmt.Printf("  %s -> %s, %d commit(s) behind:\n",
					short(plan.Head), short(plan.RemoteHead), len(plan.Behind))
				for _, line := range plan.Behind {
					fmt.Printf("    %s\n", line)
				}
			default:
				fmt.Printf("  %s -> %s (histories diverged, update would hard-reset)\n",
					short(plan.Head), short(plan.RemoteHead))
			}
			if plan.Dirty {
				fmt.Println("  ! working tree has local changes")
			}
			if !plan.Running {
				fmt.Println("  service is stopped; it will not be started by an update")
			}
		}
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback BACKUP INSTANCE",
	Short: "Restore an instance from a snapshot",
	Long: `Restore an instance's env file and data directory from a snapshot
directory and restart the service. Pass "latest" as BACKUP to use the
instance's newest snapshot.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, u, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		if err := u.Rollback(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ %s rolled back\n", args[1])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, u, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		instances, err := u.Instances().List()
		if err != nil {
			return err
		}
		if len(instances) == 0 {
			fmt.Printf("No instances found under %s\n", cfg.BaseDir)
			return nil
		}

		fmt.Printf("%-14s %-30s %s\n", "INSTANCE", "SERVICE", "PATH")
		for _, inst := range instances {
			fmt.Printf("%-14s %-30s %s\n", inst.ID, inst.ServiceName, inst.Dir)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service state and checkout position for every instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, u, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		statuses, err := u.Status(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%-14s %-30s %-8s %-10s %s\n", "INSTANCE", "SERVICE", "STATE", "COMMIT", "BRANCH")
		for _, st := range statuses {
			branch := st.Branch
			if st.Dirty {
				branch += " (dirty)"
			}
			fmt.Printf("%-14s %-30s %-8s %-10s %s\n",
				st.Instance, st.Service, st.State, short(st.Head), branch)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [INSTANCE]",
	Short: "Show past update attempts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		store, err := storage.NewBoltStore(cfg.StatePath)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		defer store.Close()

		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		records, err := store.ListUpdates(id)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No update history")
			return nil
		}

		if id != "" {
			if backupDir, err := store.LatestBackup(id); err == nil && backupDir != "" {
				fmt.Printf("Latest snapshot: %s\n\n", backupDir)
			}
		}

		limit, _ := cmd.Flags().GetInt("limit")
		if limit > 0 && len(records) > limit {
			records = records[len(records)-limit:]
		}

		fmt.Printf("%-20s %-14s %-10s %-20s %s\n", "STARTED", "INSTANCE", "STATUS", "COMMIT", "NOTE")
		for _, rec := range records {
			commit := short(rec.CommitAfter)
			if rec.CommitBefore != "" && rec.CommitBefore != rec.CommitAfter {
				commit = short(rec.CommitBefore) + " -> " + short(rec.CommitAfter)
			}
			note := rec.Error
			if note == "" && rec.Decision == types.ConfigRefresh {
				note = "config refreshed"
			}
			if rec.HardReset {
				note = strings.TrimSpace(note + " (hard reset)")
			}
			fmt.Printf("%-20s %-14s %-10s %-20s %s\n",
				rec.StartedAt.Format("2006-01-02 15:04:05"), rec.InstanceID, rec.Status, commit, note)
		}
		return nil
	},
}

func init() {
	updateAllCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the batch")
	historyCmd.Flags().Int("limit", 20, "Show at most this many records (0 for all)")
}

func short(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
