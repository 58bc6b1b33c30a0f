package agent

import (
	"context"

	"github.com/coralrun/agentfsm/internal/llmgateway"
	"github.com/coralrun/agentfsm/pkg/models"
)

type newStateResponse struct {
	Name        string `json:"name"`
	Scenario    string `json:"scenario"`
	Instruction string `json:"instruction"`
}

// NewStateAgent synthesizes a transient state from conversation history
// alone, for agents configured without a fixed state machine. The
// returned State is never persisted into the Setting's FSM.
type NewStateAgent struct {
	gateway *llmgateway.Gateway
}

// NewNewStateAgent binds a NewStateAgent to a per-turn Gateway.
func NewNewStateAgent(gateway *llmgateway.Gateway) *NewStateAgent {
	return &NewStateAgent{gateway: gateway}
}

// Synthesize asks the LLM to invent a state fitting the conversation so far.
func (a *NewStateAgent) Synthesize(ctx context.Context, history []models.Step) (models.State, error) {
	prompt := buildNewStatePrompt(history)
	var resp newStateResponse
	if err := a.gateway.AskStructured(ctx, prompt, history, newStateResponseSchema, &resp); err != nil {
		return models.State{Name: "default", Scenario: "fallback", Instruction: "Respond helpfully to the user."}, nil
	}
	return models.State{Name: resp.Name, Scenario: resp.Scenario, Instruction: resp.Instruction}, nil
}
