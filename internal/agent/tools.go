package agent

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/coralrun/agentfsm/pkg/models"
)

// sendMessageToUserSchema is the fixed JSON-schema parameters object for
// the one built-in tool every agent carries.
var sendMessageToUserSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"agent_message": map[string]any{
			"type":        "string",
			"description": "The message to send to the user.",
		},
	},
	"required": []string{"agent_message"},
}

// ToolSet is the set of tools available to the Select-Actions Agent and the
// Action Executor for one turn: the built-in reply action plus whatever
// RequestTools the caller attached to the request.
type ToolSet struct {
	requestTools map[string]models.RequestTool
	schemas      map[string]*jsonschema.Schema
}

// NewToolSet indexes the caller-supplied RequestTools by name and compiles
// each tool's parameter schema once, up front. A schema that fails to
// compile is dropped without an error being reported, and ValidateArguments
// then treats that tool as unconstrained.
func NewToolSet(requestTools []models.RequestTool) *ToolSet {
	indexed := make(map[string]models.RequestTool, len(requestTools))
	schemas := make(map[string]*jsonschema.Schema, len(requestTools))
	for _, t := range requestTools {
		indexed[t.Name] = t
		if len(t.ParameterSchema) == 0 {
			continue
		}
		if compiled, err := compileParameterSchema(t.Name, t.ParameterSchema); err == nil {
			schemas[t.Name] = compiled
		}
	}
	return &ToolSet{requestTools: indexed, schemas: schemas}
}

// compileParameterSchema compiles a RequestTool's JSON-schema parameters
// object, adapted from the plugin manifest config-schema validator.
func compileParameterSchema(toolName string, schema map[string]any) (*jsonschema.Schema, error) {
	payload, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode parameter schema: %w", err)
	}
	id := toolName + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(id)
}

// ValidateArguments checks a tool call's arguments against the named tool's
// compiled parameter schema. A tool with no schema, or whose schema failed
// to compile at ToolSet construction, is treated as unconstrained.
func (ts *ToolSet) ValidateArguments(name string, arguments map[string]any) error {
	schema, ok := ts.schemas[name]
	if !ok {
		return nil
	}
	payload, err := json.Marshal(arguments)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return schema.Validate(decoded)
}

// Descriptors returns the tool-calling schema for every tool in this set,
// built-in reply action first.
func (ts *ToolSet) Descriptors() []models.ToolDescriptor {
	descriptors := make([]models.ToolDescriptor, 0, len(ts.requestTools)+1)
	descriptors = append(descriptors, models.ToolDescriptor{
		Name:        models.BuiltinSendMessageToUser,
		Description: "Send a message to the user. Use this to reply.",
		Parameters:  sendMessageToUserSchema,
	})
	for _, t := range ts.requestTools {
		descriptors = append(descriptors, models.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.ParameterSchema,
		})
	}
	return descriptors
}

// Lookup returns the RequestTool registered under name, if any.
func (ts *ToolSet) Lookup(name string) (models.RequestTool, bool) {
	t, ok := ts.requestTools[name]
	return t, ok
}

// IsKnown reports whether name is either the built-in reply action or a
// registered RequestTool.
func (ts *ToolSet) IsKnown(name string) bool {
	if name == models.BuiltinSendMessageToUser {
		return true
	}
	_, ok := ts.requestTools[name]
	return ok
}
