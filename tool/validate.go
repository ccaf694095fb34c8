package tool

import (
	"fmt"
	"slices"
	"strings"
)

// Severity defines diagnostic severity produced by validators.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a structured validation finding.
type Diagnostic struct {
	Field    string   `json:"field,omitempty"`
	Code     string   `json:"code,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Diagnostics is a list of findings from one validation pass.
type Diagnostics []Diagnostic

// HasErrors returns true when at least one error-severity diagnostic exists.
func (d Diagnostics) HasErrors() bool {
	for _, diag := range d {
		if diag.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Summary joins error messages into a single line.
func (d Diagnostics) Summary() string {
	parts := make([]string, 0, len(d))
	for _, diag := range d {
		if diag.Severity != SeverityError {
			continue
		}
		if diag.Field != "" {
			parts = append(parts, diag.Field+": "+diag.Message)
		} else {
			parts = append(parts, diag.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateDescriptor checks a descriptor before registration.
func ValidateDescriptor(d Descriptor) Diagnostics {
	diags := make(Diagnostics, 0)
	if strings.TrimSpace(d.Name) == "" {
		diags = append(diags, Diagnostic{
			Field:    "name",
			Code:     "REQUIRED_NAME",
			Severity: SeverityError,
			Message:  "tool name is required",
		})
	}
	if d.Handler == nil {
		diags = append(diags, Diagnostic{
			Field:    "handler",
			Code:     "REQUIRED_HANDLER",
			Severity: SeverityError,
			Message:  "handler is required",
		})
	}

	seen := make(map[string]struct{}, len(d.Params))
	for i, p := range d.Params {
		field := fmt.Sprintf("params[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			diags = append(diags, Diagnostic{
				Field:    field + ".name",
				Code:     "REQUIRED_PARAM_NAME",
				Severity: SeverityError,
				Message:  "parameter name is required",
			})
			continue
		}
		field = "params." + p.Name
		if _, dup := seen[p.Name]; dup {
			diags = append(diags, Diagnostic{
				Field:    field,
				Code:     "DUPLICATE_PARAM",
				Severity: SeverityError,
				Message:  fmt.Sprintf("parameter %q is declared more than once", p.Name),
			})
		}
		seen[p.Name] = struct{}{}

		if !isValidV1Type(p.Type) {
			diags = append(diags, Diagnostic{
				Field:    field + ".type",
				Code:     "INVALID_TYPE",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Unsupported type %q; allowed: string, integer, float, boolean, array, object, any", p.Type),
			})
			continue
		}
		if p.Default != nil {
			if p.Required {
				diags = append(diags, Diagnostic{
					Field:    field + ".default",
					Code:     "DEFAULT_ON_REQUIRED",
					Severity: SeverityWarning,
					Message:  "default is ignored for required parameters",
				})
			}
			if _, err := coerceValue(p.Type, p.Default); err != nil {
				diags = append(diags, Diagnostic{
					Field:    field + ".default",
					Code:     "INVALID_DEFAULT",
					Severity: SeverityError,
					Message:  err.Error(),
				})
			}
		}
	}

	if d.Returns.Kind != ReturnKindValue && d.Returns.Kind != ReturnKindList {
		diags = append(diags, Diagnostic{
			Field:    "returns.kind",
			Code:     "INVALID_RETURN_KIND",
			Severity: SeverityError,
			Message:  fmt.Sprintf("return kind %q must be %q or %q", d.Returns.Kind, ReturnKindValue, ReturnKindList),
		})
	} else if !isValidV1Type(d.Returns.Type) {
		diags = append(diags, Diagnostic{
			Field:    "returns.type",
			Code:     "INVALID_TYPE",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Unsupported return type %q", d.Returns.Type),
		})
	}
	return diags
}

// BindArguments validates raw arguments against the descriptor's parameters
// and returns them coerced, with defaults applied. Unknown argument names are
// rejected.
func BindArguments(d Descriptor, raw map[string]any) (Args, Diagnostics) {
	diags := make(Diagnostics, 0)
	bound := make(Args, len(d.Params))

	for _, name := range sortedArgNames(raw) {
		if _, ok := d.Param(name); !ok {
			diags = append(diags, Diagnostic{
				Field:    name,
				Code:     "UNKNOWN_ARGUMENT",
				Severity: SeverityError,
				Message:  fmt.Sprintf("tool %q has no parameter %q", d.Name, name),
			})
		}
	}

	for _, p := range d.Params {
		value, present := raw[p.Name]
		if !present || value == nil {
			if p.Required {
				diags = append(diags, Diagnostic{
					Field:    p.Name,
					Code:     "MISSING_ARGUMENT",
					Severity: SeverityError,
					Message:  fmt.Sprintf("required parameter %q (%s) is missing", p.Name, p.Type),
				})
				continue
			}
			if p.Default != nil {
				if coerced, err := coerceValue(p.Type, p.Default); err == nil {
					bound[p.Name] = coerced
				}
			}
			continue
		}

		coerced, err := coerceValue(p.Type, value)
		if err != nil {
			diags = append(diags, Diagnostic{
				Field:    p.Name,
				Code:     "TYPE_MISMATCH",
				Severity: SeverityError,
				Message:  err.Error(),
			})
			continue
		}
		bound[p.Name] = coerced
	}

	return bound, diags
}

func sortedArgNames(raw map[string]any) []string {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
