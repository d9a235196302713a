package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/service"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	SkipImages bool
	Force      bool
	Resume     bool
	Region     string
	Theme      string
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the identity, content and images",
		Long: `Run the full pipeline: invent a council identity, generate every content
item in dependency order, then generate the deduplicated image queue.

With --resume, an interrupted run continues from the phase it stopped in and
skips every item that already finished.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := loadApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			f := newFormatter(cmd, rootOpts)
			runOpts := service.RunOptions{
				SkipImages: opts.SkipImages,
				Force:      opts.Force,
				Region:     opts.Region,
				Theme:      opts.Theme,
				Observer:   f.Observer(),
			}
			run := application.Pipeline.Run
			if opts.Resume {
				run = application.Pipeline.Resume
			}
			return report(cmd.Context(), f, run, runOpts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipImages, "skip-images", false, "stop after generating content")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "start over, deleting previously generated content, even if a run appears to be in progress")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "continue an interrupted run")
	cmd.Flags().StringVar(&opts.Region, "region", "", "region key for the council identity (random when empty)")
	cmd.Flags().StringVar(&opts.Theme, "theme", "", "theme key for the council identity (random when empty)")

	return cmd
}

// NewRetryCommand creates the retry command.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	var skipImages bool

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Regenerate failed content and images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := loadApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			f := newFormatter(cmd, rootOpts)
			return report(cmd.Context(), f, application.Pipeline.RetryFailed, service.RunOptions{
				SkipImages: skipImages,
				Observer:   f.Observer(),
			})
		},
	}
	cmd.Flags().BoolVar(&skipImages, "skip-images", false, "only retry content")
	return cmd
}

// NewImagesCommand creates the images command.
func NewImagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "Process the pending image queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := loadApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			f := newFormatter(cmd, rootOpts)
			result, err := application.Pipeline.ProcessImages(cmd.Context(), service.RunOptions{Observer: f.Observer()})
			if err != nil {
				return runError(err)
			}
			if err := f.Print(result, func(w io.Writer) { WriteBatch(w, result) }); err != nil {
				return err
			}
			if result.HasFailures() {
				return NewExitError(ExitFailure, "some images failed; run `councilgen retry`")
			}
			return nil
		},
	}
}

type runFunc func(ctx context.Context, opts service.RunOptions) (*service.RunReport, error)

func report(ctx context.Context, f *OutputFormatter, run runFunc, opts service.RunOptions) error {
	result, err := run(ctx, opts)
	if err != nil {
		if result != nil && (result.Content != nil || result.Images != nil) {
			_ = f.Print(result, func(w io.Writer) { WriteReport(w, result) })
		}
		return runError(err)
	}
	if err := f.Print(result, func(w io.Writer) { WriteReport(w, result) }); err != nil {
		return err
	}
	if hasFailures(result) {
		return NewExitError(ExitFailure, "generation finished with failures; run `councilgen retry`")
	}
	return nil
}

func hasFailures(r *service.RunReport) bool {
	return (r.Content != nil && r.Content.HasFailures()) || (r.Images != nil && r.Images.HasFailures())
}

func runError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return WrapExitError(ExitFailure, "interrupted; run `councilgen generate --resume` to continue", err)
	case errors.Is(err, service.ErrRunInProgress):
		return WrapExitError(ExitCommandError, "a run is already in progress; use --force to start over or --resume to continue", err)
	case errors.Is(err, service.ErrNothingToResume), errors.Is(err, service.ErrNoIdentity):
		return WrapExitError(ExitCommandError, "nothing to do", err)
	}
	var transition *domain.InvalidTransitionError
	if errors.As(err, &transition) {
		return WrapExitError(ExitCommandError, "pipeline is not in a state that allows this", err)
	}
	return WrapExitError(ExitFailure, "generation failed", err)
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
