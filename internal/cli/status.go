package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/timmy/councilgen/internal/service"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted generation progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := loadApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			status, err := application.Pipeline.Status(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read status", err)
			}
			f := newFormatter(cmd, rootOpts)
			return f.Print(status, func(w io.Writer) { WriteStatus(w, status) })
		},
	}
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Forget all generation progress",
		Long: `Clear the generation state, image queue, content ledger and identity.
Generated content is kept unless --purge is given, which also deletes
media records and stored images.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := loadApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := application.Pipeline.Cancel(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to cancel", err)
			}
			out := cancelOutput{Cancelled: true}
			if purge {
				if out.Purged, err = application.Cleanup.PurgeAll(ctx); err != nil {
					return WrapExitError(ExitCommandError, "failed to delete generated content", err)
				}
			}
			f := newFormatter(cmd, rootOpts)
			return f.Print(out, func(w io.Writer) { WriteCancel(w, out) })
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also delete generated content, media records and stored images")
	return cmd
}

type cancelOutput struct {
	Cancelled bool                   `json:"cancelled"`
	Purged    *service.CleanupReport `json:"purged,omitempty"`
}

// WriteCancel prints the outcome of the cancel command.
func WriteCancel(w io.Writer, out cancelOutput) {
	fmt.Fprintln(w, "Generation progress cleared.")
	if out.Purged != nil {
		writeCleanup(w, out.Purged)
	}
}
