package cli

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/timmy/councilgen/internal/app"
	"github.com/timmy/councilgen/internal/service"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Estimate a run without generating anything",
		Long: `Load and validate the template catalog, then print the content counts,
the expected number of unique images after deduplication, and the cost and
time estimates. Nothing is generated or persisted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			loader, err := app.NewCatalog(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load catalog", err)
			}
			return runPlan(cmd, rootOpts, loader)
		},
	}
}

func runPlan(cmd *cobra.Command, opts *RootOptions, catalog service.Catalog) error {
	specs, err := catalog.LoadAll(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	plan := service.NewPlanReport(specs)

	f := newFormatter(cmd, opts)
	if err := f.Print(plan, func(w io.Writer) { WritePlan(w, plan) }); err != nil {
		return err
	}
	if len(plan.Problems) > 0 {
		return NewExitError(ExitFailure, "catalog has problems")
	}
	return nil
}
