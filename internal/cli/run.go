package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rewind/internal/harness"
	"github.com/roach88/rewind/internal/journal"
	"github.com/roach88/rewind/internal/metrics"
	"github.com/roach88/rewind/internal/store"
	"github.com/roach88/rewind/internal/testutil"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Session  string
	Metrics  bool

	// SessionGenerator overrides how recorded sessions are named (for
	// testing). If nil, --db runs use UUIDv7Generator.
	SessionGenerator store.SessionGenerator
}

// RunResult is the outcome of one scenario run.
type RunResult struct {
	Scenario string   `json:"scenario"`
	Pass     bool     `json:"pass"`
	Events   int      `json:"events"`
	Errors   []string `json:"errors,omitempty"`
	Metrics  string   `json:"metrics,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario against a fresh journal",
		Long: `Run one scenario file against a fresh journal and object table.

The scenario's classes are compiled, its steps applied, and its
expectations and assertions checked. With --db every journal event is
recorded to the SQLite database under a new session (inspect it with
"rewind trace"). With --metrics the journal counters are printed in the
Prometheus text format.

Example:
  rewind run ./scenarios/drag.yaml
  rewind run --db ./rewind.db --metrics ./scenarios/drag.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record events to this SQLite database")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to record under (default: a new UUIDv7 with --db)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print journal metrics in Prometheus text format")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	runOpts := []harness.Option{harness.WithLogger(logger)}

	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithStore(st))

		sessions := opts.SessionGenerator
		if sessions == nil {
			sessions = store.UUIDv7Generator{}
		}
		runOpts = append(runOpts, harness.WithSessionGenerator(sessions))
	}
	if opts.Session != "" {
		runOpts = append(runOpts, harness.WithSessionGenerator(testutil.NewFixedSessionGenerator(opts.Session)))
	}

	var collector *metrics.Collector
	if opts.Metrics {
		collector = metrics.NewCollector()
		runOpts = append(runOpts, harness.WithObserver(func(j *journal.Journal) {
			collector.Attach(j)
		}))
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := harness.RunContext(ctx, scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}
	logger.Debug("scenario finished", "scenario", scenario.Name, "session", result.SessionID, "events", len(result.Trace))

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Events:   len(result.Trace),
		Errors:   result.Errors,
	}
	if collector != nil {
		var buf bytes.Buffer
		if err := collector.WriteText(&buf); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		out.Metrics = buf.String()
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: out, SessionID: result.SessionID}
		if !out.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeTestFailed, Message: fmt.Sprintf("scenario %s failed", out.Scenario)}
		}
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		outputRunText(cmd, out, result.SessionID, opts.Database != "")
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", out.Scenario))
	}
	return nil
}

func outputRunText(cmd *cobra.Command, out RunResult, sessionID string, recorded bool) {
	w := cmd.OutOrStdout()
	mark := "✓"
	if !out.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (%d events)\n", mark, out.Scenario, out.Events)
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	if recorded {
		fmt.Fprintf(w, "Recorded session: %s\n", sessionID)
	}
	if out.Metrics != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, out.Metrics)
	}
}
