package agent

import (
	"context"
	"errors"

	"github.com/coralrun/agentfsm/internal/llmgateway"
	"github.com/coralrun/agentfsm/pkg/models"
)

// ErrNoCandidates indicates the FSM has no reachable next state from the
// current one; the caller should fall through to the New-State Agent.
var ErrNoCandidates = errors.New("agent: no candidate states")

type stateSelectResponse struct {
	StateName string `json:"state_name"`
	Reason    string `json:"reason"`
}

// StateSelectAgent picks the next FSM state from the enumerated candidates
// using the LLM, with one corrective re-ask on an out-of-candidate answer.
type StateSelectAgent struct {
	gateway *llmgateway.Gateway
}

// NewStateSelectAgent binds a StateSelectAgent to a per-turn Gateway.
func NewStateSelectAgent(gateway *llmgateway.Gateway) *StateSelectAgent {
	return &StateSelectAgent{gateway: gateway}
}

// Select determines the current state from history, enumerates candidates,
// and asks the LLM to choose among them.
func (a *StateSelectAgent) Select(ctx context.Context, fsm *models.StateMachine, history []models.Step, feedbacks []models.Feedback) (models.State, error) {
	current := currentStateName(history)
	names := fsm.NextCandidates(current)
	if len(names) == 0 {
		return models.State{}, ErrNoCandidates
	}
	candidates := resolveCandidates(fsm, names)

	prompt := buildStateSelectPrompt(candidates, history, feedbacks)
	var resp stateSelectResponse
	if err := a.gateway.AskStructured(ctx, prompt, history, stateSelectResponseSchema, &resp); err != nil {
		return candidates[0], nil
	}

	if state, ok := findCandidate(candidates, resp.StateName); ok {
		return state, nil
	}

	retryPrompt := buildStateSelectRetryPrompt(resp.StateName, candidates)
	var retryResp stateSelectResponse
	if err := a.gateway.AskStructured(ctx, retryPrompt, history, stateSelectResponseSchema, &retryResp); err == nil {
		if state, ok := findCandidate(candidates, retryResp.StateName); ok {
			return state, nil
		}
	}

	return candidates[0], nil
}

func currentStateName(history []models.Step) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			return history[i].StateName
		}
	}
	return ""
}

func findCandidate(candidates []models.State, name string) (models.State, bool) {
	for _, c := range candidates {
		if c.Name == name {
			return c, true
		}
	}
	return models.State{}, false
}

func resolveCandidates(fsm *models.StateMachine, names []string) []models.State {
	states := make([]models.State, 0, len(names))
	for _, name := range names {
		if state, ok := fsm.Get(name); ok {
			states = append(states, state)
		}
	}
	return states
}
