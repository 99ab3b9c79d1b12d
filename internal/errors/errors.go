package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// BuildResolutionFailed indicates workspace or feature resolution failed
	BuildResolutionFailed ErrorCode = "BUILD_RESOLUTION_FAILED"
	// DependencyInfoMissing indicates a build unit's dep-info record is absent
	DependencyInfoMissing ErrorCode = "DEPENDENCY_INFO_MISSING"
	// ParseFailed indicates a source file could not be parsed
	ParseFailed ErrorCode = "PARSE_FAILED"
	// GraphArtifactNotFound indicates no call-graph artifact matches the package
	GraphArtifactNotFound ErrorCode = "GRAPH_ARTIFACT_NOT_FOUND"
	// UnmatchedFinding indicates an unsafe function has no call-graph node
	UnmatchedFinding ErrorCode = "UNMATCHED_FINDING"
	// ToolFailed indicates an external tool (cargo, opt) failed
	ToolFailed ErrorCode = "TOOL_FAILED"
	// ConfigInvalid indicates the configuration is invalid
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// fatalCodes are the structural conditions where continuing would produce
// meaningless output.
var fatalCodes = map[ErrorCode]bool{
	BuildResolutionFailed: true,
	GraphArtifactNotFound: true,
	ToolFailed:            true,
	ConfigInvalid:         true,
	InternalError:         true,
}

// IsFatal reports whether an error code aborts the run.
func IsFatal(code ErrorCode) bool {
	return fatalCodes[code]
}

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
	// InstallTool suggests installing a tool
	InstallTool FixActionType = "install-tool"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
	Tool        string        `json:"tool,omitempty"`
}

// AuditError represents an analysis error with code, message, and suggestions
type AuditError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new AuditError. When fixes is nil the default fixes for the
// code are attached.
func New(code ErrorCode, message string, cause error, fixes []FixAction) *AuditError {
	if fixes == nil {
		fixes = GetSuggestedFixes(code)
	}
	return &AuditError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: fixes,
	}
}

// Newf creates an AuditError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *AuditError {
	return New(code, fmt.Sprintf(format, args...), nil, nil)
}

// Error implements the error interface
func (e *AuditError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AuditError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *AuditError) WithDetails(details interface{}) *AuditError {
	e.Details = details
	return e
}

// Fatal reports whether the error aborts the run.
func (e *AuditError) Fatal() bool {
	return IsFatal(e.Code)
}

// CodeOf returns the code of the first AuditError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var ae *AuditError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return InternalError
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	BuildResolutionFailed: {
		{
			Type:        RunCommand,
			Command:     "cargo metadata --format-version 1",
			Safe:        true,
			Description: "Check that the workspace and requested features resolve",
		},
	},
	GraphArtifactNotFound: {
		{
			Type:        InstallTool,
			Tool:        "opt",
			Description: "Install LLVM opt matching the rustc LLVM version",
		},
		{
			Type:        RunCommand,
			Command:     "unsafegraph audit --graph <path-to-callgraph.dot>",
			Safe:        true,
			Description: "Point at an existing call-graph artifact",
		},
	},
	ToolFailed: {
		{
			Type:        RunCommand,
			Command:     "cargo rustc -- --emit=llvm-bc",
			Safe:        true,
			Description: "Check that the crate builds and emits bitcode",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "unsafegraph config init",
			Safe:        false,
			Description: "Write a fresh default configuration",
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
