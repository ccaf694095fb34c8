package tool

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// InputSchema renders a descriptor's parameters as a JSON Schema object.
// Properties keep declaration order.
func InputSchema(d Descriptor) *jsonschema.Schema {
	properties := orderedmap.New[string, *jsonschema.Schema]()
	required := make([]string, 0)
	for _, p := range d.Params {
		prop := fieldSchema(p.Type)
		prop.Description = p.Description
		if !p.Required && p.Default != nil {
			prop.Default = p.Default
		}
		properties.Set(p.Name, prop)
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return &jsonschema.Schema{
		Type:                 "object",
		Description:          d.Description,
		Properties:           properties,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// OutputSchema renders a descriptor's return shape as a JSON Schema.
func OutputSchema(d Descriptor) *jsonschema.Schema {
	item := fieldSchema(d.Returns.Type)
	if d.Returns.Kind == ReturnKindList {
		return &jsonschema.Schema{Type: "array", Items: item}
	}
	return item
}

// MarshalInputSchema is InputSchema encoded as JSON.
func MarshalInputSchema(d Descriptor) (json.RawMessage, error) {
	return json.Marshal(InputSchema(d))
}

func fieldSchema(typeName string) *jsonschema.Schema {
	switch typeName {
	case TypeString, TypeInteger, TypeBoolean, TypeObject:
		return &jsonschema.Schema{Type: typeName}
	case TypeFloat:
		return &jsonschema.Schema{Type: "number"}
	case TypeArray:
		return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{}}
	default:
		return &jsonschema.Schema{}
	}
}
