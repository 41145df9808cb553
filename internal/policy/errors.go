package policy

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes reported by Load and Compile.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeInvalidScope = "E121" // Missing or unknown scope
	ErrCodeInvalidTags  = "E122" // Tags not a list of non-empty strings
	ErrCodeUnknownField = "E123" // Field other than scope/tags
	ErrCodeNoPolicies   = "E124" // No policy block declared
)

// CompileError is a policy validation failure, positioned in the CUE source
// when possible.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the error code of err, or ErrCodeGeneric.
func CodeOf(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeGeneric
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error, code string) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Code: code, Message: err.Error()}
	}

	first := errs[0]
	ce := &CompileError{Code: code, Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
