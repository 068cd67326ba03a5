package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// MalformedDiff indicates the diff header or hunk framing cannot be parsed
	MalformedDiff ErrorCode = "MALFORMED_DIFF"
	// ConfigInvalid indicates configuration failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// ManifestUnreadable indicates a published-interface manifest could not be loaded
	ManifestUnreadable ErrorCode = "MANIFEST_UNREADABLE"
	// ScanTimeout indicates the usage scan ran out of time
	ScanTimeout ErrorCode = "SCAN_TIMEOUT"
	// InvalidInput indicates a bad flag or argument
	InvalidInput ErrorCode = "INVALID_INPUT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// AnalysisError is an error with a stable code, message, and suggestions
type AnalysisError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// NewAnalysisError creates a new AnalysisError with the default fixes for its code
func NewAnalysisError(code ErrorCode, message string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *AnalysisError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AnalysisError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *AnalysisError) WithDetails(details interface{}) *AnalysisError {
	e.Details = details
	return e
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	MalformedDiff: {
		{
			Type:        RunCommand,
			Command:     "git diff --no-color --no-ext-diff",
			Safe:        true,
			Description: "Regenerate the diff without color codes or external diff drivers",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "changeguard config init --force",
			Safe:        false,
			Description: "Reset configuration to defaults",
		},
	},
	ScanTimeout: {
		{
			Type:        RunCommand,
			Command:     "changeguard analyze --timeout 2m",
			Safe:        true,
			Description: "Allow the usage scan more time",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}

// Exit codes used by the CLI
const (
	ExitOK        = 0
	ExitThreshold = 1
	ExitBadInput  = 2
	ExitInternal  = 3
)

// ExitCode maps an error to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ae *AnalysisError
	if stderrors.As(err, &ae) {
		switch ae.Code {
		case MalformedDiff, ConfigInvalid, ManifestUnreadable, InvalidInput:
			return ExitBadInput
		}
	}
	return ExitInternal
}

// CodeOf returns the code of the first AnalysisError in err's chain
func CodeOf(err error) (ErrorCode, bool) {
	var ae *AnalysisError
	if stderrors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}
