package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/stagehand/internal/config"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Force bool
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented config file",
		Long: `Write a config file with every setting at its default value to the
--config path (default ` + config.DefaultPath + `). Refuses to overwrite an
existing file unless --force is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite an existing config file")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath
	}

	if fileExists(path) && !opts.Force {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed,
			fmt.Sprintf("%s already exists (use --force to overwrite)", path), nil)
	}

	if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"path": path})
	}
	fmt.Fprintf(formatter.Writer, "✓ Wrote %s\n", path)
	return nil
}
