package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stagehand/internal/plan"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                   `json:"valid"`
	Plan   string                 `json:"plan,omitempty"`
	Steps  int                    `json:"steps,omitempty"`
	Errors []plan.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan.yaml>",
		Short: "Validate a plan without touching the database",
		Long: `Check a plan file against the plan schema and verify that every update,
sync and destroy targets an entity persisted and flushed by an earlier step.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, planPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	p, err := plan.Load(planPath)
	if err != nil {
		var le *plan.LoadError
		if errors.As(err, &le) && len(le.Errors) > 0 {
			return outputValidationErrors(formatter, le.Errors)
		}
		return failPlanLoad(formatter, err)
	}

	formatter.VerboseLog("Validated %d step(s) in %s", len(p.Steps), planPath)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Plan: p.Name, Steps: len(p.Steps)})
	}
	fmt.Fprintf(formatter.Writer, "✓ Plan %s valid (%d steps)\n", p.Name, len(p.Steps))
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []plan.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}
		_ = formatter.Success(result)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %d validation error(s):\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", e.Code, e.Field, e.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(errs)))
}
