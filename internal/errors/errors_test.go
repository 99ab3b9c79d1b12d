package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("exit status 101")
	fixes := []FixAction{{Type: RunCommand, Command: "cargo check"}}

	err := New(BuildResolutionFailed, "cargo metadata failed", cause, fixes)

	if err.Code != BuildResolutionFailed {
		t.Errorf("Code = %v, want %v", err.Code, BuildResolutionFailed)
	}
	if err.Message != "cargo metadata failed" {
		t.Errorf("Message = %q, want %q", err.Message, "cargo metadata failed")
	}
	if len(err.SuggestedFixes) != 1 || err.SuggestedFixes[0].Command != "cargo check" {
		t.Errorf("SuggestedFixes = %+v, want the explicit fix", err.SuggestedFixes)
	}
}

func TestNew_DefaultFixes(t *testing.T) {
	err := New(GraphArtifactNotFound, "no artifact", nil, nil)
	if len(err.SuggestedFixes) != len(ErrorActions[GraphArtifactNotFound]) {
		t.Errorf("len(SuggestedFixes) = %d, want defaults", len(err.SuggestedFixes))
	}
}

func TestAuditError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      ToolFailed,
			message:   "opt failed",
			cause:     errors.New("executable file not found"),
			wantParts: []string{"TOOL_FAILED", "opt failed", "executable file not found"},
		},
		{
			name:      "without cause",
			code:      GraphArtifactNotFound,
			message:   "no call graph for foo",
			cause:     nil,
			wantParts: []string{"GRAPH_ARTIFACT_NOT_FOUND", "no call graph for foo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause, nil).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestAuditError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(InternalError, "something went wrong", cause, nil)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false")
	}

	if New(ParseFailed, "bad file", nil, nil).Unwrap() != nil {
		t.Errorf("Unwrap() on error without cause should return nil")
	}
}

func TestAuditError_WithDetails(t *testing.T) {
	err := Newf(DependencyInfoMissing, "missing %s", "foo.d")
	result := err.WithDetails(map[string]string{"unit": "foo"})

	if result != err {
		t.Error("WithDetails should return the same error for chaining")
	}
	if err.Details == nil {
		t.Error("Details should be set")
	}
	if err.Message != "missing foo.d" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{BuildResolutionFailed, true},
		{GraphArtifactNotFound, true},
		{ToolFailed, true},
		{ConfigInvalid, true},
		{InternalError, true},
		{DependencyInfoMissing, false},
		{ParseFailed, false},
		{UnmatchedFinding, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := IsFatal(tt.code); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.code, got, tt.want)
			}
			if got := New(tt.code, "x", nil, nil).Fatal(); got != tt.want {
				t.Errorf("Fatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("audit: %w", New(GraphArtifactNotFound, "none", nil, nil))
	if got := CodeOf(wrapped); got != GraphArtifactNotFound {
		t.Errorf("CodeOf(wrapped) = %v, want %v", got, GraphArtifactNotFound)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, InternalError)
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	tests := []struct {
		code    ErrorCode
		wantNil bool
		wantLen int
	}{
		{BuildResolutionFailed, false, 1},
		{GraphArtifactNotFound, false, 2},
		{ToolFailed, false, 1},
		{ConfigInvalid, false, 1},
		{ParseFailed, true, 0},
		{UnmatchedFinding, true, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			fixes := GetSuggestedFixes(tt.code)

			if tt.wantNil && fixes != nil {
				t.Errorf("GetSuggestedFixes(%v) = %v, want nil", tt.code, fixes)
			}
			if !tt.wantNil && len(fixes) != tt.wantLen {
				t.Errorf("GetSuggestedFixes(%v) len = %d, want %d", tt.code, len(fixes), tt.wantLen)
			}
		})
	}
}

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		BuildResolutionFailed,
		DependencyInfoMissing,
		ParseFailed,
		GraphArtifactNotFound,
		UnmatchedFinding,
		ToolFailed,
		ConfigInvalid,
		InternalError,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %v", code)
		}
		seen[code] = true
		if string(code) == "" {
			t.Error("Error code should not be empty")
		}
	}
}
