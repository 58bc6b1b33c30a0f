// Package llmgateway wraps an OpenAI-compatible chat completions endpoint,
// translating conversation Steps into requests and recording token usage
// under a session id fixed at construction time.
package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coralrun/agentfsm/internal/backoff"
	"github.com/coralrun/agentfsm/internal/usage"
	"github.com/coralrun/agentfsm/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

const defaultMaxCompletionTokens = 1024

// maxRetries bounds RateLimitError/NetworkError retries on a single call.
const maxRetries = 2

// AssistantMessage is the raw result of an ask_with_tools call: any
// textual content the model produced plus the tool calls it selected.
type AssistantMessage struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Gateway is constructed fresh per turn by the Orchestrator — never cached
// across turns or stored in a package-level variable — so that one turn's
// model configuration can never leak into a concurrently running turn.
type Gateway struct {
	client    *openai.Client
	coords    models.ChatModelCoordinates
	sessionID string
	counter   *usage.Counter
	policy    backoff.BackoffPolicy
}

// New builds a Gateway bound to sessionID for the lifetime of one turn.
// Every call this Gateway makes records usage under sessionID; the
// Orchestrator must read totals back using that exact same string.
func New(coords models.ChatModelCoordinates, sessionID string, counter *usage.Counter) *Gateway {
	config := openai.DefaultConfig(coords.APIKey)
	if coords.BaseURL != "" {
		config.BaseURL = coords.BaseURL
	}
	return &Gateway{
		client:    openai.NewClientWithConfig(config),
		coords:    coords,
		sessionID: sessionID,
		counter:   counter,
		policy:    backoff.DefaultPolicy(),
	}
}

func (g *Gateway) maxCompletionTokens() int {
	if g.coords.MaxCompletionTokens > 0 {
		return g.coords.MaxCompletionTokens
	}
	return defaultMaxCompletionTokens
}

func stepsToMessages(systemPrompt string, history []models.Step) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, step := range history {
		switch step.Role {
		case models.RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: step.Content,
			})
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			if step.Result != nil {
				msg.Content = step.Result.Content
			}
			if step.Action != nil {
				args, _ := json.Marshal(step.Action.Arguments)
				msg.ToolCalls = []openai.ToolCall{{
					ID:   step.Action.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      step.Action.Name,
						Arguments: string(args),
					},
				}}
			}
			messages = append(messages, msg)
		}
	}
	return messages
}

func toolDescriptorsToOpenAI(tools []models.ToolDescriptor) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// createChatCompletion issues the request with the caller's retry budget
// for RateLimitError/NetworkError, recording usage on every attempt that
// returns a response (including the final successful one).
func (g *Gateway) createChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff.SleepWithBackoff(ctx, g.policy, attempt); err != nil {
				return openai.ChatCompletionResponse{}, err
			}
		}

		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = classify(err)
			if !IsRetryable(lastErr) {
				return openai.ChatCompletionResponse{}, lastErr
			}
			continue
		}

		if g.counter != nil {
			g.counter.Add(g.sessionID, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
		}
		return resp, nil
	}
	return openai.ChatCompletionResponse{}, lastErr
}

// Ask performs a plain completion: system + history in, final text out.
func (g *Gateway) Ask(ctx context.Context, systemPrompt string, history []models.Step) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     g.coords.Model,
		Messages:  stepsToMessages(systemPrompt, history),
		MaxTokens: g.maxCompletionTokens(),
	}
	if g.coords.Temperature != 0 {
		req.Temperature = g.coords.Temperature
	}
	if g.coords.TopP != 0 {
		req.TopP = g.coords.TopP
	}

	resp, err := g.createChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &BadResponse{Cause: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

// AskWithTools requests the model choose zero or more tool calls, returning
// the raw assistant message (text plus any tool calls).
func (g *Gateway) AskWithTools(ctx context.Context, systemPrompt string, history []models.Step, tools []models.ToolDescriptor) (*AssistantMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:     g.coords.Model,
		Messages:  stepsToMessages(systemPrompt, history),
		MaxTokens: g.maxCompletionTokens(),
		Tools:     toolDescriptorsToOpenAI(tools),
	}

	resp, err := g.createChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &BadResponse{Cause: fmt.Errorf("no choices returned")}
	}

	msg := resp.Choices[0].Message
	out := &AssistantMessage{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

// AskStructured requests JSON output conforming to schema, decoding it into
// out. On a parse failure it re-sends the conversation plus the invalid
// JSON and a repair instruction exactly once before giving up with
// BadResponse.
func (g *Gateway) AskStructured(ctx context.Context, systemPrompt string, history []models.Step, schema map[string]any, out any) error {
	raw, err := g.askJSON(ctx, systemPrompt, history)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}

	repairPrompt := systemPrompt + "\n\nYour previous reply did not parse as valid JSON matching the required schema. Previous reply:\n" + raw + "\n\nReply again with ONLY valid JSON matching the schema."
	raw, err = g.askJSON(ctx, repairPrompt, history)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &BadResponse{Raw: raw, Cause: err}
	}
	return nil
}

func (g *Gateway) askJSON(ctx context.Context, systemPrompt string, history []models.Step) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     g.coords.Model,
		Messages:  stepsToMessages(systemPrompt, history),
		MaxTokens: g.maxCompletionTokens(),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := g.createChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &BadResponse{Cause: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}
