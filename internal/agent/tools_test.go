package agent

import (
	"testing"

	"github.com/coralrun/agentfsm/pkg/models"
)

func TestToolSet_Descriptors_IncludesBuiltinFirst(t *testing.T) {
	ts := NewToolSet([]models.RequestTool{{Name: "weather", Description: "get weather"}})
	descriptors := ts.Descriptors()

	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[0].Name != models.BuiltinSendMessageToUser {
		t.Errorf("expected builtin first, got %q", descriptors[0].Name)
	}
}

func TestToolSet_IsKnown(t *testing.T) {
	ts := NewToolSet([]models.RequestTool{{Name: "weather"}})

	if !ts.IsKnown(models.BuiltinSendMessageToUser) {
		t.Error("expected builtin to be known")
	}
	if !ts.IsKnown("weather") {
		t.Error("expected registered RequestTool to be known")
	}
	if ts.IsKnown("nonexistent") {
		t.Error("expected unregistered tool to be unknown")
	}
}

func TestToolSet_Lookup(t *testing.T) {
	ts := NewToolSet([]models.RequestTool{{Name: "weather", URL: "http://example.com"}})

	tool, ok := ts.Lookup("weather")
	if !ok {
		t.Fatal("expected weather tool to be found")
	}
	if tool.URL != "http://example.com" {
		t.Errorf("URL = %q", tool.URL)
	}

	if _, ok := ts.Lookup("missing"); ok {
		t.Error("expected missing tool to not be found")
	}
}

func TestToolSet_ValidateArguments(t *testing.T) {
	ts := NewToolSet([]models.RequestTool{{
		Name: "weather",
		ParameterSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
	}})

	if err := ts.ValidateArguments("weather", map[string]any{"city": "Boston"}); err != nil {
		t.Errorf("ValidateArguments() with valid args = %v, want nil", err)
	}
	if err := ts.ValidateArguments("weather", map[string]any{}); err == nil {
		t.Error("expected a validation error for missing required field")
	}
	if err := ts.ValidateArguments("weather", map[string]any{"city": 5}); err == nil {
		t.Error("expected a validation error for a wrong-typed field")
	}
}

func TestToolSet_ValidateArguments_NoSchemaIsUnconstrained(t *testing.T) {
	ts := NewToolSet([]models.RequestTool{{Name: "weather"}})

	if err := ts.ValidateArguments("weather", map[string]any{"anything": true}); err != nil {
		t.Errorf("ValidateArguments() with no schema = %v, want nil", err)
	}
	if err := ts.ValidateArguments("unknown-tool", nil); err != nil {
		t.Errorf("ValidateArguments() for unknown tool = %v, want nil (executor handles unknown separately)", err)
	}
}
