package agent

import (
	"context"

	"github.com/coralrun/agentfsm/internal/llmgateway"
	"github.com/coralrun/agentfsm/pkg/models"
)

// SelectActionsAgent asks the LLM, with tools attached, to emit one or more
// actions for the current state.
type SelectActionsAgent struct {
	gateway *llmgateway.Gateway
}

// NewSelectActionsAgent binds a SelectActionsAgent to a per-turn Gateway.
func NewSelectActionsAgent(gateway *llmgateway.Gateway) *SelectActionsAgent {
	return &SelectActionsAgent{gateway: gateway}
}

// Select builds the system prompt from globalPrompt, the chosen state's
// instruction, and any retrieved feedback, calls ask_with_tools, and
// returns the ordered action list. A textual reply with no tool calls is
// synthesized into a single send_message_to_user action.
func (a *SelectActionsAgent) Select(ctx context.Context, globalPrompt string, state models.State, history []models.Step, feedbacks []models.Feedback, tools *ToolSet) ([]models.Action, error) {
	systemPrompt := globalPrompt
	if state.Instruction != "" {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += state.Instruction
	}
	if block := buildSelectActionsFeedbackBlock(feedbacks); block != "" {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += block
	}

	msg, err := a.gateway.AskWithTools(ctx, systemPrompt, history, tools.Descriptors())
	if err != nil {
		return nil, err
	}

	if len(msg.ToolCalls) == 0 {
		if msg.Content == "" {
			return nil, nil
		}
		return []models.Action{{
			Name:      models.BuiltinSendMessageToUser,
			Arguments: map[string]any{"agent_message": msg.Content},
		}}, nil
	}

	actions := make([]models.Action, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		actions = append(actions, models.Action{
			Name:       tc.Name,
			Arguments:  args,
			ToolCallID: tc.ID,
		})
	}
	return actions, nil
}
