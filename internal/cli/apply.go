package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stagehand/internal/config"
	"github.com/roach88/stagehand/internal/plan"
	"github.com/roach88/stagehand/internal/store"
	"github.com/roach88/stagehand/internal/unitofwork"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	StoreFlags
	Strategy string

	// IDGenerator allows overriding the unit id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator unitofwork.UnitIDGenerator

	// Clock allows overriding the flush clock (for testing).
	// If nil, defaults to SystemClock.
	Clock unitofwork.Clock
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <plan.yaml>",
		Short: "Run a plan against the database",
		Long: `Load a plan, run its setup statements and flush its steps as one or more
units of work.

The database and flush strategy come from the config file unless overridden.
A plan that names a strategy always uses it.

Example:
  stagehand apply ./plans/archive.yaml
  stagehand apply --db /tmp/test.db --strategy fan-out ./plans/archive.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	opts.StoreFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "default flush strategy: sequential or fan-out (overrides config)")

	return cmd
}

func runApply(opts *ApplyOptions, planPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	if err := opts.StoreFlags.apply(&cfg); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	if opts.Strategy != "" {
		if err := config.ValidateStrategy(opts.Strategy); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
		}
		cfg.Strategy = opts.Strategy
	}

	logger := opts.newLogger(formatter.GetErrWriter(), cfg)

	p, err := plan.Load(planPath)
	if err != nil {
		return failPlanLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded plan %s: %d step(s)", p.Name, len(p.Steps))

	logger.Debug("opening database", "path", cfg.Database, "driver", cfg.Driver)
	st, err := store.Open(cfg.Database, store.WithDriver(cfg.Driver))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, err.Error(), nil)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	mgrOpts := []unitofwork.Option{unitofwork.WithLogger(logger)}
	if opts.IDGenerator != nil {
		mgrOpts = append(mgrOpts, unitofwork.WithIDGenerator(opts.IDGenerator))
	}
	if opts.Clock != nil {
		mgrOpts = append(mgrOpts, unitofwork.WithClock(opts.Clock))
	}
	mgr := unitofwork.New(st, mgrOpts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := plan.Run(ctx, p, mgr, st,
		plan.WithStrategy(cfg.Strategy),
		plan.WithRunnerLogger(logger),
	)
	if err != nil {
		var fe *unitofwork.FlushError
		if errors.As(err, &fe) {
			return formatter.Fail(ExitFailure, ErrCodeFlushFailed, err.Error(), map[string]any{
				"stage":    string(fe.Stage),
				"unit":     fe.UnitID,
				"strategy": fe.Strategy,
				"failed":   fe.Failed,
				"applied":  res.Units,
			})
		}
		return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(res)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Applied plan %s (%s, %d unit(s))\n", res.Plan, res.Strategy, len(res.Units))
	for _, u := range res.Units {
		fmt.Fprintf(w, "  unit %s: %s\n", u.ID, describeCounts(u.Flushed))
	}
	return nil
}

// describeCounts renders the non-zero queue sizes, e.g. "2 links, 1 sync".
func describeCounts(c unitofwork.Counts) string {
	var parts []string
	add := func(n int, one, many string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+one)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %s", n, many))
		}
	}
	add(c.Links, "link", "links")
	add(c.Updates, "update", "updates")
	add(c.Syncs, "sync", "syncs")
	add(c.Hiddens, "hide", "hides")
	add(c.Destroys, "delete", "deletes")
	add(c.Procedures, "procedure", "procedures")
	if len(parts) == 0 {
		return "nothing staged"
	}
	return strings.Join(parts, ", ")
}

// failPlanLoad reports a plan load error with its own code. Unreadable
// files are command errors; invalid plans are failures.
func failPlanLoad(formatter *OutputFormatter, err error) error {
	var le *plan.LoadError
	if !errors.As(err, &le) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if le.Code == plan.ErrCodeRead {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	var details interface{}
	if len(le.Errors) > 0 {
		details = le.Errors
	}
	return formatter.Fail(ExitFailure, le.Code, err.Error(), details)
}
