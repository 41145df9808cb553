package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/policy"
)

// ValidationError is one reported policy problem.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Files    int               `json:"files"`
	Policies []PolicySummary   `json:"policies"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// PolicySummary describes one valid catalog entry.
type PolicySummary struct {
	Kind  string   `json:"kind"`
	Scope string   `json:"scope"`
	Tags  []string `json:"tags,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <policies-dir>",
		Short: "Validate a CUE policy catalog",
		Long: `Validate every policy declared in the CUE files of a directory.

All invalid entries are reported, not just the first. Each policy must
declare a scope of none, per_subject, global or pure, and may declare a
list of tags.

Exit codes:
  0 - Catalog valid
  1 - One or more policies invalid
  2 - Command error (directory missing, CUE syntax error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cat, errs := policy.Load(dir, policy.LoadModeCollectAll)

	// No catalog at all: the directory or CUE source itself is unusable.
	if cat == nil {
		err := fmt.Errorf("no catalog loaded from %s", dir)
		if len(errs) > 0 {
			err = errs[0]
		}
		_ = formatter.Error(policy.CodeOf(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load policies", err)
	}

	formatter.Debugf("Found %d CUE file(s) in %s", cat.FileCount, dir)

	result := ValidationResult{
		Valid:    len(errs) == 0,
		Files:    cat.FileCount,
		Policies: summarize(cat),
		Errors:   toValidationErrors(errs),
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func summarize(cat *policy.Catalog) []PolicySummary {
	out := make([]PolicySummary, 0, cat.Len())
	for _, kind := range cat.Kinds() {
		p := cat.Lookup(kind)
		out = append(out, PolicySummary{
			Kind:  string(kind),
			Scope: p.Scope.String(),
			Tags:  p.Tags,
		})
	}
	return out
}

func toValidationErrors(errs []error) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, err := range errs {
		var ce *policy.CompileError
		if !errors.As(err, &ce) {
			out = append(out, ValidationError{Code: policy.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		ve := ValidationError{Code: ce.Code, Field: ce.Field, Message: ce.Message}
		if ce.Pos.IsValid() {
			ve.File = ce.Pos.Filename()
			ve.Line = ce.Pos.Line()
		}
		out = append(out, ve)
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All policies valid (%d)\n", len(result.Policies))
	if formatter.Verbose {
		for _, p := range result.Policies {
			fmt.Fprintf(formatter.Writer, "  %s: %s%s\n", p.Kind, p.Scope, formatTags(p.Tags))
		}
	}
	return nil
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.Format == "json" {
		first := result.Errors[0]
		if err := formatter.JSON(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range result.Errors {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return failure
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return fmt.Sprintf(" %v", tags)
}

// ValidatePoliciesDir validates a catalog directory for external callers.
// The returned slice is empty when every policy is valid.
func ValidatePoliciesDir(dir string) ([]ValidationError, error) {
	cat, errs := policy.Load(dir, policy.LoadModeCollectAll)
	if cat == nil {
		if len(errs) == 0 {
			return nil, fmt.Errorf("no catalog loaded from %s", dir)
		}
		return nil, errs[0]
	}
	return toValidationErrors(errs), nil
}
