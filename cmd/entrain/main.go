// Command entrain runs timed behavioral experiments from YAML task files.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evokelab/entrain"
	"github.com/evokelab/entrain/internal/config"
	"github.com/evokelab/entrain/internal/paradigm"
	"github.com/evokelab/entrain/internal/recordlog"
	"github.com/evokelab/entrain/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "entrain",
		Short:         "Trial sequencing engine for timed behavioral experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newEstimateCmd(),
		newParadigmsCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// taskToConfig maps the YAML task file onto the public session config.
func taskToConfig(t config.Task) entrain.Config {
	cfg := entrain.Config{
		Paradigm:         t.Paradigm,
		TrialsPerClass:   t.TrialsPerClass,
		TrialDuration:    secs(t.TrialDurationSec),
		Timeout:          secs(t.TimeoutSec),
		ITIMin:           secs(t.ITIMinSec),
		ITIMax:           secs(t.ITIMaxSec),
		PreRunDuration:   secs(t.PreRunSec),
		PostRunDuration:  secs(t.PostRunSec),
		FocusCueDuration: secs(t.FocusCueSec),
		Multiclass:       t.Multiclass,
		FeedbackEnabled:  t.Feedback.Enabled,
		FeedbackDelay:    secs(t.Feedback.DelaySec),
		FeedbackWindow:   secs(t.Feedback.WindowSec),
		FeedbackHold:     secs(t.Feedback.HoldSec),
		Reaction: entrain.ReactionConfig{
			Mode:        t.Reaction.Mode,
			DecodeClass: t.Reaction.DecodeClass,
		},
		SSVEP: entrain.SSVEPConfig{
			Stimulus:            t.SSVEP.Stimulus,
			CommonBaseFrequency: t.SSVEP.CommonBaseFrequency,
		},
		SSAEP: entrain.SSAEPConfig{
			SampleRate:      t.SSAEP.SampleRate,
			LeftCarrier:     t.SSAEP.LeftCarrier,
			LeftModulation:  t.SSAEP.LeftModulation,
			RightCarrier:    t.SSAEP.RightCarrier,
			RightModulation: t.SSAEP.RightModulation,
		},
	}
	for _, c := range t.Classes {
		cfg.Classes = append(cfg.Classes, entrain.ClassSpec{
			Label:         c.Label,
			Frequency:     c.Frequency,
			BaseFrequency: c.BaseFrequency,
		})
	}
	return cfg
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// logSink adapts the record log to the session's sink contract. The log is
// attached after the session exists because its file name carries the run id.
type logSink struct {
	log *recordlog.Log
}

func (s *logSink) Write(ctx context.Context, rec entrain.TrialRecord) error {
	return s.log.Append(ctx, rec)
}

func newRunCmd() *cobra.Command {
	var (
		output string
		seed   int64
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "run <task.yaml>",
		Short: "Run an experiment session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env if present (non-fatal; production won't have one).
			_ = godotenv.Load()

			envCfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(envCfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			otelShutdown, err := telemetry.Init(ctx, envCfg.OTELEndpoint, envCfg.ServiceName, version, envCfg.OTELInsecure)
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			defer func() { _ = otelShutdown(context.Background()) }()

			task, err := config.LoadTask(args[0])
			if err != nil {
				return err
			}

			sink := &logSink{}
			opts := []entrain.Option{
				entrain.WithLogger(logger),
				entrain.WithRecordSink(sink),
			}
			if cmd.Flags().Changed("seed") {
				opts = append(opts, entrain.WithRandSeed(seed))
			}
			session, err := entrain.New(taskToConfig(task), opts...)
			if err != nil {
				return err
			}
			defer session.Close()

			dir := envCfg.RecordDir
			if output != "" {
				dir = output
			}
			recLog, err := recordlog.Open(logger, recordlog.Config{
				Dir:          dir,
				SyncMode:     envCfg.RecordSyncMode,
				SyncInterval: envCfg.RecordSyncInterval,
			}, session.Slug(), session.RunID())
			if err != nil {
				return err
			}
			sink.log = recLog

			if err := session.Start(ctx); err != nil {
				return err
			}

			// Stdin feeds actions and decode messages into the run. The
			// reader cannot be unblocked, so it is not part of the group.
			go readEvents(session, logger)

			var g errgroup.Group
			g.Go(func() error {
				for p := range session.Progress() {
					if !quiet {
						fmt.Fprintf(os.Stderr, "[%s] %s (%d/%d emitted)\n", p.Phase, p.Status, p.Completed, p.Total)
					}
				}
				return nil
			})
			g.Go(func() error {
				for c := range session.Cues() {
					if !quiet && c.Label != "" {
						fmt.Fprintf(os.Stderr, "cue: %s\n", c.Label)
					}
				}
				return nil
			})

			summary, runErr := session.Wait(context.Background())
			_ = g.Wait()

			if err := recLog.Append(context.Background(), summary); err != nil {
				logger.Warn("run: could not append summary", "error", err)
			}
			if err := recLog.Close(); err != nil {
				logger.Warn("run: record log close failed", "error", err)
			}
			logger.Info("run: session record log written", "path", recLog.Path())

			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			// A user abort is a clean exit; only genuine failures escalate.
			if summary.Outcome == entrain.OutcomeFailed {
				return runErr
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "record log directory (default ENTRAIN_RECORD_DIR)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "fix the random seed for a deterministic run")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress and cue output")
	return cmd
}

// readEvents turns stdin lines into session events: `decode <json>` feeds a
// classifier score vector, `class <label>` feeds the decoded-class stream,
// any other line fires the action with that label (an empty line fires the
// primary action).
func readEvents(session *entrain.Session, logger *slog.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "decode "):
			var msg entrain.DecodeMessage
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "decode ")), &msg); err != nil {
				logger.Warn("run: malformed decode line", "error", err)
				continue
			}
			session.Decode(msg)
		case strings.HasPrefix(line, "class "):
			session.DecodedClass(strings.TrimSpace(strings.TrimPrefix(line, "class ")))
		default:
			session.Action(line)
		}
	}
}

// frozenView is what `entrain validate` prints: the run as the session
// froze it, after snapping and paradigm class construction.
type frozenView struct {
	Paradigm string              `json:"paradigm"`
	Slug     string              `json:"slug"`
	Planned  int                 `json:"planned_trials"`
	Estimate string              `json:"estimated_duration"`
	Classes  []entrain.ClassSpec `json:"classes"`
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <task.yaml>",
		Short: "Validate a task file and print the frozen run parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := quietLogger()
			task, err := config.LoadTask(args[0])
			if err != nil {
				return err
			}
			session, err := entrain.New(taskToConfig(task), entrain.WithLogger(logger))
			if err != nil {
				return err
			}
			defer session.Close()

			out, err := json.MarshalIndent(frozenView{
				Paradigm: session.Paradigm(),
				Slug:     session.Slug(),
				Planned:  session.Planned(),
				Estimate: session.Estimate().String(),
				Classes:  session.Classes(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <task.yaml>",
		Short: "Print the expected run length for a task file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := config.LoadTask(args[0])
			if err != nil {
				return err
			}
			session, err := entrain.New(taskToConfig(task), entrain.WithLogger(quietLogger()))
			if err != nil {
				return err
			}
			defer session.Close()

			classes := session.Classes()
			fmt.Printf("paradigm:  %s\n", session.Paradigm())
			fmt.Printf("trials:    %d (%d classes x %d per class)\n", session.Planned(), len(classes), task.TrialsPerClass)
			fmt.Printf("estimated: %s\n", session.Estimate())
			return nil
		},
	}
}

func newParadigmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paradigms",
		Short: "List the paradigm catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, info := range paradigm.Catalog() {
				feedback := "no feedback"
				if info.SupportsFeedback {
					feedback = "feedback"
				}
				fmt.Printf("%-10s %-7s %-9s %-12s %s\n", info.Name, info.Slug, info.Presentation, feedback, info.Title)
			}
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented example task file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "task.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("create task file: %w", err)
			}
			if _, err := f.WriteString(config.ExampleTask); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("entrain", version)
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}
