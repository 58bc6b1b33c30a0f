// Package agent holds the tool layer and action executor that turn a
// Select-Actions Agent's chosen actions into executed Steps.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coralrun/agentfsm/pkg/models"
)

const defaultExecutorConcurrency = 4

// Executor runs actions against a ToolSet, producing one Step per action.
// It holds no per-turn state and is safe to reuse across turns and to call
// concurrently for independent actions within the same turn.
type Executor struct {
	httpClient  *http.Client
	concurrency int
}

// NewExecutor builds an Executor with the given bounded fan-out
// concurrency (0 uses the default).
func NewExecutor(concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = defaultExecutorConcurrency
	}
	return &Executor{
		httpClient:  &http.Client{},
		concurrency: concurrency,
	}
}

// Execute runs a single action and returns its resulting Step. It never
// panics: a panicking tool implementation is recovered and converted to a
// failed Step.
func (e *Executor) Execute(ctx context.Context, action models.Action, tools *ToolSet) (step models.Step) {
	defer func() {
		if r := recover(); r != nil {
			toolErr := NewToolError(action.Name, fmt.Errorf("%w: %v", ErrToolPanic, r)).WithType(ToolErrorPanic)
			step = failedStep(action, toolErr.Error())
		}
	}()

	switch {
	case action.Name == models.BuiltinSendMessageToUser:
		return executeSendMessageToUser(action)
	default:
		tool, ok := tools.Lookup(action.Name)
		if !ok {
			toolErr := NewToolError(action.Name, ErrToolNotFound)
			return skippedStep(action, toolErr.Error())
		}
		if err := tools.ValidateArguments(action.Name, action.Arguments); err != nil {
			toolErr := NewToolError(action.Name, err).WithType(ToolErrorInvalidInput)
			return models.Step{
				Role:   models.RoleAssistant,
				Action: &action,
				Result: &models.Result{Error: toolErr.Error(), ExecState: models.ExecFailed},
			}
		}
		content, execErr := executeRequestTool(ctx, e.httpClient, tool, action.Arguments)
		if execErr != "" {
			return models.Step{
				Role:   models.RoleAssistant,
				Action: &action,
				Result: &models.Result{Content: content, Error: execErr, ExecState: models.ExecFailed},
			}
		}
		return models.Step{
			Role:   models.RoleAssistant,
			Action: &action,
			Result: &models.Result{Content: content, ExecState: models.ExecSuccess},
		}
	}
}

func executeSendMessageToUser(action models.Action) models.Step {
	message, _ := action.Arguments["agent_message"].(string)
	return models.Step{
		Role:   models.RoleAssistant,
		Action: &action,
		Result: &models.Result{Content: message, ExecState: models.ExecSuccess},
	}
}

func failedStep(action models.Action, errMsg string) models.Step {
	return models.Step{
		Role:   models.RoleAssistant,
		Action: &action,
		Result: &models.Result{Error: errMsg, ExecState: models.ExecFailed},
	}
}

func skippedStep(action models.Action, errMsg string) models.Step {
	return models.Step{
		Role:   models.RoleAssistant,
		Action: &action,
		Result: &models.Result{Error: errMsg, ExecState: models.ExecSkipped},
	}
}

// ExecuteBatch runs actions in emission order, fanning out concurrently
// over maximal runs of non-terminating actions, but executing a
// send_message_to_user action on its own once its run of RequestTool
// siblings completes. Execution stops — and the remaining actions are
// never run — as soon as a send_message_to_user Step succeeds.
func (e *Executor) ExecuteBatch(ctx context.Context, actions []models.Action, tools *ToolSet) (steps []models.Step, terminated bool) {
	i := 0
	for i < len(actions) {
		if actions[i].Name == models.BuiltinSendMessageToUser {
			step := e.Execute(ctx, actions[i], tools)
			steps = append(steps, step)
			i++
			if step.Result != nil && step.Result.ExecState == models.ExecSuccess {
				return steps, true
			}
			continue
		}

		start := i
		for i < len(actions) && actions[i].Name != models.BuiltinSendMessageToUser {
			i++
		}
		steps = append(steps, e.executeConcurrent(ctx, actions[start:i], tools)...)
	}
	return steps, false
}

func (e *Executor) executeConcurrent(ctx context.Context, actions []models.Action, tools *ToolSet) []models.Step {
	results := make([]models.Step, len(actions))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for idx, action := range actions {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, action models.Action) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.Execute(ctx, action, tools)
		}(idx, action)
	}
	wg.Wait()
	return results
}
