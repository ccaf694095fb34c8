package tool

import (
	"context"
	"fmt"
)

// Return kinds for ReturnShape.
const (
	ReturnKindValue = "value"
	ReturnKindList  = "list"
)

// Param declares one named, typed parameter of a tool.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
	// Default is applied when an optional parameter is absent.
	Default any `json:"default,omitempty"`
}

// ReturnShape describes what a tool hands back: a single value or a list of
// values of Type.
type ReturnShape struct {
	Kind string `json:"kind"`
	Type string `json:"type"`
}

// ReturnsValue is a single-value return shape.
func ReturnsValue(typeName string) ReturnShape {
	return ReturnShape{Kind: ReturnKindValue, Type: typeName}
}

// ReturnsList is a list return shape.
func ReturnsList(itemType string) ReturnShape {
	return ReturnShape{Kind: ReturnKindList, Type: itemType}
}

// Result is what a handler produces. IsError marks a value that describes a
// failed outcome; it is still data and is returned to the caller as such.
type Result struct {
	Value   any
	IsError bool
}

// Handler implements a tool. Args have been validated against the
// descriptor's parameters, with defaults applied, before the call.
type Handler func(ctx context.Context, args Args) (Result, error)

// Descriptor is one registry entry.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Params      []Param     `json:"params"`
	Returns     ReturnShape `json:"returns"`
	Handler     Handler     `json:"-"`
}

// Param returns the parameter declaration with the given name.
func (d Descriptor) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Args are validated invocation arguments. Integer parameters hold int64
// and float parameters hold float64.
type Args map[string]any

// String returns the string argument name, or "" when absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns the integer argument name, or 0 when absent.
func (a Args) Int(name string) int64 {
	n, _ := a[name].(int64)
	return n
}

func (r ReturnShape) String() string {
	if r.Kind == ReturnKindList {
		return fmt.Sprintf("list<%s>", r.Type)
	}
	return r.Type
}
