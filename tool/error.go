package tool

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ToolErrorCodeUnknownTool is returned when no tool has the requested name.
	ToolErrorCodeUnknownTool = "UNKNOWN_TOOL"
	// ToolErrorCodeInvalidArguments is returned when arguments do not match the parameter schema.
	ToolErrorCodeInvalidArguments = "INVALID_ARGUMENTS"
	// ToolErrorCodeDuplicateTool is returned when a name is registered twice.
	ToolErrorCodeDuplicateTool = "DUPLICATE_TOOL"
	// ToolErrorCodeInvalidDescriptor is returned when a descriptor fails validation.
	ToolErrorCodeInvalidDescriptor = "INVALID_DESCRIPTOR"
	// ToolErrorCodeRegistrySealed is returned on registration after Seal.
	ToolErrorCodeRegistrySealed = "REGISTRY_SEALED"
	// ToolErrorCodeInvocationFailed is a generic fallback for handler failures.
	ToolErrorCodeInvocationFailed = "INVOCATION_FAILED"
)

var (
	// ErrUnknownTool indicates the requested tool is not registered.
	ErrUnknownTool = errors.New("tool: unknown tool")
	// ErrInvalidArguments indicates arguments failed schema validation.
	ErrInvalidArguments = errors.New("tool: invalid arguments")
	// ErrDuplicateTool indicates a tool name is already registered.
	ErrDuplicateTool = errors.New("tool: duplicate tool")
	// ErrInvalidDescriptor indicates a malformed descriptor.
	ErrInvalidDescriptor = errors.New("tool: invalid descriptor")
	// ErrRegistrySealed indicates the registry no longer accepts registrations.
	ErrRegistrySealed = errors.New("tool: registry sealed")
	// ErrInvocationFailed indicates the handler itself failed.
	ErrInvocationFailed = errors.New("tool: invocation failed")
)

// ToolError is a structured registry error that can cross the transport
// boundary without losing its machine-readable code.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ToolErrorCodeInvocationFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newToolError(code, message string, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ToolErrorCodeInvocationFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:    cleanCode,
		Message: cleanMsg,
		Cause:   cause,
	}
}

func withToolErrorDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil {
		return nil
	}
	if len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

// AsToolError extracts a *ToolError from err's chain.
func AsToolError(err error) (*ToolError, bool) {
	if err == nil {
		return nil, false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// ErrorCode returns the ToolError code carried by err, or "".
func ErrorCode(err error) string {
	if toolErr, ok := AsToolError(err); ok && toolErr != nil {
		return toolErr.Code
	}
	return ""
}
