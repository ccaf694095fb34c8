package tool

import (
	"encoding/json"
	"fmt"
	"math"
)

// V1 type system literals used by parameter schemas.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeAny     = "any"
)

var validV1Types = map[string]struct{}{
	TypeString:  {},
	TypeInteger: {},
	TypeFloat:   {},
	TypeBoolean: {},
	TypeArray:   {},
	TypeObject:  {},
	TypeAny:     {},
}

func isValidV1Type(typeName string) bool {
	_, ok := validV1Types[typeName]
	return ok
}

// coerceValue checks value against typeName and returns it in canonical Go
// form: integers as int64, floats as float64. Integral JSON numbers are
// accepted for integer parameters since JSON decoding yields float64.
func coerceValue(typeName string, value any) (any, error) {
	switch typeName {
	case TypeAny:
		return value, nil
	case TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case TypeBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case TypeInteger:
		return coerceInteger(value)
	case TypeFloat:
		return coerceFloat(value)
	case TypeArray:
		if items, ok := value.([]any); ok {
			return items, nil
		}
	case TypeObject:
		if obj, ok := value.(map[string]any); ok {
			return obj, nil
		}
	default:
		return nil, fmt.Errorf("unsupported type %q", typeName)
	}
	return nil, fmt.Errorf("expected %s, got %s", typeName, describeValue(value))
}

func coerceInteger(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("expected integer, got non-integral number %v", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
		if v < -(1<<63) || v >= 1<<63 {
			return nil, fmt.Errorf("expected integer, got %v which is out of int64 range", v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", v.String())
		}
		return n, nil
	}
	return nil, fmt.Errorf("expected integer, got %s", describeValue(value))
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected float, got %q", v.String())
		}
		return f, nil
	}
	return nil, fmt.Errorf("expected float, got %s", describeValue(value))
}

func describeValue(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
