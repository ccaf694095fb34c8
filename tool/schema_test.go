package tool

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestInputSchema(t *testing.T) {
	d := Descriptor{
		Name:        "get_people",
		Description: "Run a read query.",
		Params: []Param{
			{Name: "query", Type: TypeString, Default: "SELECT * FROM people", Description: "SELECT statement"},
			{Name: "limit", Type: TypeInteger, Required: true},
			{Name: "ratio", Type: TypeFloat},
		},
		Returns: ReturnsList(TypeObject),
	}

	raw, err := MarshalInputSchema(d)
	if err != nil {
		t.Fatalf("MarshalInputSchema() error = %v", err)
	}

	var decoded struct {
		Type                 string                    `json:"type"`
		Properties           map[string]map[string]any `json:"properties"`
		Required             []string                  `json:"required"`
		AdditionalProperties bool                      `json:"additionalProperties"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal(schema) error = %v; raw=%s", err, raw)
	}
	if decoded.Type != "object" {
		t.Fatalf("type = %q, want object", decoded.Type)
	}
	if decoded.Properties["query"]["default"] != "SELECT * FROM people" {
		t.Fatalf("query default = %v", decoded.Properties["query"]["default"])
	}
	if decoded.Properties["ratio"]["type"] != "number" {
		t.Fatalf("ratio type = %v, want number", decoded.Properties["ratio"]["type"])
	}
	if len(decoded.Required) != 1 || decoded.Required[0] != "limit" {
		t.Fatalf("required = %v, want [limit]", decoded.Required)
	}
	if decoded.AdditionalProperties {
		t.Fatal("additionalProperties = true, want false")
	}

	// Properties keep declaration order.
	text := string(raw)
	if !(strings.Index(text, `"query"`) < strings.Index(text, `"limit"`) && strings.Index(text, `"limit"`) < strings.Index(text, `"ratio"`)) {
		t.Fatalf("properties out of declaration order: %s", text)
	}
}

func TestOutputSchema(t *testing.T) {
	list := OutputSchema(Descriptor{Returns: ReturnsList(TypeObject)})
	if list.Type != "array" || list.Items == nil || list.Items.Type != "object" {
		t.Fatalf("list schema = %#v", list)
	}
	value := OutputSchema(Descriptor{Returns: ReturnsValue(TypeString)})
	if value.Type != "string" {
		t.Fatalf("value schema type = %q", value.Type)
	}
}
