package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/service"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Generation finished with failures or was interrupted
	ExitCommandError = 2 // Command error (bad config, unreachable backend, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // progress and diagnostics; keeps JSON on Writer clean
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Print writes data as JSON, or calls text for the text format.
func (f *OutputFormatter) Print(data interface{}, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Observer returns a progress observer printing one line per item in verbose mode.
func (f *OutputFormatter) Observer() service.ProgressObserver {
	if !f.Verbose {
		return nil
	}
	return func(p domain.GenerationProgress) error {
		mark := "ok"
		if !p.Success {
			mark = "FAILED"
		}
		_, err := fmt.Fprintf(f.errWriter(), "[%s] %d/%d %s %s\n", p.Phase, p.Step, p.Total, p.CurrentItem, mark)
		return err
	}
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// WritePlan renders a dry-run estimate.
func WritePlan(w io.Writer, plan *service.PlanReport) {
	fmt.Fprintln(w, "Generation plan (dry run)")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-30s %d\n", "Content items:", plan.ContentCount)

	kinds := make([]string, 0, len(plan.ContentByKind))
	for kind := range plan.ContentByKind {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "    %-28s %d\n", kindLabel(domain.ContentKind(kind)), plan.ContentByKind[domain.ContentKind(kind)])
	}

	fmt.Fprintf(w, "  %-30s %d\n", "Image requirements:", plan.ImageCount)
	fmt.Fprintf(w, "  %-30s %d\n", "Estimated unique images:", plan.EstimatedUnique)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-30s $%.2f-%.2f\n", "Content cost:", plan.ContentCostMin, plan.ContentCostMax)
	fmt.Fprintf(w, "  %-30s $%.2f-%.2f\n", "Image cost:", plan.ImageCostMin, plan.ImageCostMax)
	fmt.Fprintf(w, "  %-30s $%.2f-%.2f\n", "Total cost:", plan.TotalCostMin(), plan.TotalCostMax())
	fmt.Fprintf(w, "  %-30s %s\n", "Estimated duration:", domain.FormatDuration(plan.EstimatedDuration))

	if len(plan.Problems) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Catalog problems:")
		for _, p := range plan.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
}

// WriteReport renders the outcome of a run.
func WriteReport(w io.Writer, report *service.RunReport) {
	if report.Cleanup != nil {
		writeCleanup(w, report.Cleanup)
	}
	if report.Identity != nil {
		fmt.Fprintf(w, "Council: %s (%s, %s)\n", report.Identity.Name, report.Identity.RegionName(), report.Identity.ThemeDescription())
	}
	if report.Content != nil {
		fmt.Fprintf(w, "Content: %s\n", report.Content.Text())
		for _, id := range report.Content.FailedSpecIDs {
			fmt.Fprintf(w, "  failed: %s\n", id)
		}
	}
	if report.Images != nil {
		WriteBatch(w, report.Images)
	}
	if report.Duration > 0 {
		fmt.Fprintf(w, "Finished in %s\n", domain.FormatDuration(report.Duration))
	}
}

func writeCleanup(w io.Writer, r *service.CleanupReport) {
	fmt.Fprintf(w, "Deleted %d content items, %d media records and %d stored images.\n",
		r.ContentDeleted, r.MediaDeleted, r.FilesDeleted)
	if r.FilesFailed > 0 {
		fmt.Fprintf(w, "%d stored images could not be deleted; see the log.\n", r.FilesFailed)
	}
}

// WriteBatch renders an image pass.
func WriteBatch(w io.Writer, result *domain.ImageBatchResult) {
	fmt.Fprintf(w, "Images: %s\n", result.Text())
	if result.DuplicatesResolved > 0 {
		fmt.Fprintf(w, "  shared with duplicates: %d\n", result.DuplicatesResolved)
	}
}

// WriteStatus renders the persisted pipeline position.
func WriteStatus(w io.Writer, status *service.StatusSnapshot) {
	fmt.Fprintf(w, "Status:   %s\n", status.State.Status.Label())
	fmt.Fprintf(w, "Progress: %s\n", status.State.ProgressText())
	if status.State.LastError != "" {
		fmt.Fprintf(w, "Error:    %s\n", status.State.LastError)
	}
	if status.Identity != nil {
		fmt.Fprintf(w, "Council:  %s\n", status.Identity.Name)
	}
	fmt.Fprintf(w, "Content:  %d complete, %d failed\n", status.ContentComplete, status.ContentFailed)
	fmt.Fprintf(w, "Images:   %s\n", status.Queue.Text())
	if !status.State.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:  %s\n", status.State.UpdatedAt.Format(time.RFC3339))
	}
}

// kindLabel turns "localgov_services_page" into "Services Page".
func kindLabel(kind domain.ContentKind) string {
	label := strings.TrimPrefix(string(kind), "localgov_")
	return cases.Title(language.BritishEnglish).String(strings.ReplaceAll(label, "_", " "))
}
