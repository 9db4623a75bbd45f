package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/kination/stagehand/internal/config"
	"github.com/kination/stagehand/internal/metrics"
	"github.com/kination/stagehand/internal/replay"
	"github.com/kination/stagehand/internal/runner"
	"github.com/kination/stagehand/internal/store"
	"github.com/kination/stagehand/internal/subtask"
)

const version = "v0.1.0"

var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Stagehand - stage tracking and reward aggregation for composite tasks",
	Long: `Stagehand evaluates composite tasks that are decomposed into an ordered
solution of subtasks. It tracks the active subtask, pays stage-completion
and success bonuses on top of the subtask reward, and reports sticky
stage-goal progress.

Settings can be given as flags or as STAGEHAND_* environment variables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zapcore.ParseLevel(settings.GetString("log-level"))
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		ctrl.SetLogger(zap.New(
			zap.UseDevMode(settings.GetBool("dev")),
			zap.Level(level),
			zap.WriteTo(os.Stderr),
		))
		return nil
	},
	SilenceUsage: true,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a CompositeTask manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		player, _, err := loadPlayer(runner.DefaultRunnerConfig())
		if err != nil {
			return err
		}
		fmt.Printf("✅ %s is valid (%d measures)\n", settings.GetString("config"), len(player.Set().Order()))
		fmt.Printf("   subtask types: %v\n", subtask.NewDefaultRegistry().Types())
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the measure evaluation order of a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		player, _, err := loadPlayer(runner.DefaultRunnerConfig())
		if err != nil {
			return err
		}
		for i, m := range player.Set().Measures() {
			deps := m.Dependencies()
			if len(deps) == 0 {
				fmt.Printf("%2d. %s\n", i+1, m.UUID())
				continue
			}
			fmt.Printf("%2d. %s <- %s\n", i+1, m.UUID(), strings.Join(deps, ", "))
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded trace through the composite measures",
	Long: `Replay reads a trace of recorded episodes and evaluates every step:
  1. The first step of each episode resets the measures
  2. Every following step runs one evaluation pass
  3. Per-step rewards, success and node index are printed
  4. A per-episode summary is printed at the end`,
	RunE: func(cmd *cobra.Command, args []string) error {
		trace, err := replay.LoadTrace(settings.GetString("trace"))
		if err != nil {
			return err
		}

		registry := prometheus.NewRegistry()
		history, err := openStore(settings.GetString("history"))
		if err != nil {
			return err
		}
		defer history.Close()

		cfg := runner.DefaultRunnerConfig()
		cfg.Store = history
		cfg.Log = ctrl.Log.WithName("runner").WithValues("trace", settings.GetString("trace"))

		player, bundle, err := loadPlayer(cfg)
		if err != nil {
			return err
		}
		m, err := metrics.NewMetrics(registry, bundle.Name)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		player.Observe(m)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if _, err := player.Play(ctx, trace); err != nil {
			return fmt.Errorf("replay failed: %w", err)
		}
		if err := printHistory(ctx, history); err != nil {
			return err
		}
		if settings.GetBool("metrics") {
			return printMetrics(registry)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of stagehand",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Stagehand %s\n", version)
	},
}

func loadPlayer(cfg runner.RunnerConfig) (*replay.Player, *config.Bundle, error) {
	ct, err := config.Load(settings.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	bundle, err := config.Build(ct, subtask.NewDefaultRegistry())
	if err != nil {
		return nil, nil, err
	}
	player, err := replay.NewPlayer(bundle, cfg)
	if err != nil {
		return nil, nil, err
	}
	return player, bundle, nil
}

// openStore returns a SQLite store at path, or an in-memory store when path is empty
func openStore(path string) (store.Store, error) {
	if path == "" {
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return s, nil
}

func printHistory(ctx context.Context, history store.Store) error {
	runs, err := history.ListEpisodes(ctx, store.ListOptions{})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, run := range runs {
		fmt.Fprintf(w, "episode %s\n", run.EpisodeID)
		fmt.Fprintln(w, "STEP\tNODE\tREWARD\tTOTAL\tSTAGE BONUS\tSUCCESS")
		for _, s := range run.Steps {
			fmt.Fprintf(w, "%d\t%d\t%.3f\t%.3f\t%t\t%t\n", s.Step, s.NodeIdx, s.Reward, s.TotalReward, s.StageBonus, s.Success)
		}
		fmt.Fprintf(w, "return %.3f, succeeded %t\n\n", run.Return(), run.Succeeded())
	}
	return w.Flush()
}

func printMetrics(registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("dev", false, "Use development logging")
	rootCmd.PersistentFlags().StringP("config", "c", "task.yaml", "Path to the CompositeTask manifest")
	replayCmd.Flags().StringP("trace", "t", "trace.yaml", "Path to the recorded trace")
	replayCmd.Flags().Bool("metrics", false, "Print Prometheus metrics after the replay")
	replayCmd.Flags().String("history", "", "SQLite file to keep step history in (in-memory when empty)")

	for _, flags := range []*cobra.Command{rootCmd, replayCmd} {
		if err := settings.BindPFlags(flags.PersistentFlags()); err != nil {
			panic(err)
		}
		if err := settings.BindPFlags(flags.Flags()); err != nil {
			panic(err)
		}
	}
	settings.SetEnvPrefix("stagehand")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}
