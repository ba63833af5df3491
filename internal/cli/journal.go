package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stagehand/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	StoreFlags
	Unit string
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List operations applied to the database",
		Long: `Print the store journal in sequence order: one entry per insert, update,
delete, hide or procedure, tagged with the unit of work that issued it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	opts.StoreFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Unit, "unit", "", "only entries for this unit of work")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}
	if err := opts.StoreFlags.apply(&cfg); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil)
	}

	// Opening would create an empty database; a missing file is an error here.
	if !fileExists(cfg.Database) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", cfg.Database), nil)
	}

	st, err := store.Open(cfg.Database, store.WithDriver(cfg.Driver))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, err.Error(), nil)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	entries, err := st.Journal(ctx, opts.Unit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	formatter.VerboseLog("Read %d journal entr(ies) from %s", len(entries), cfg.Database)

	if formatter.Format == "json" {
		if entries == nil {
			entries = []store.JournalEntry{}
		}
		return formatter.Success(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "Journal is empty")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tUNIT\tOP\tTABLE\tROW\tDETAIL")
	for _, e := range entries {
		detail := e.Patch
		if detail == "" {
			detail = e.Detail
		}
		row := ""
		if e.Table != "" {
			row = fmt.Sprintf("%d", e.RowID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.Seq, e.Unit, e.Op, e.Table, row, detail)
	}
	return tw.Flush()
}
