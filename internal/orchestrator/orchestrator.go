// Package orchestrator drives one chat turn end to end: it appends the
// incoming user message to memory, retrieves prior feedback, runs the
// state-select / select-actions / execute loop within a bounded LLM call
// budget, and returns the updated memory plus token totals.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coralrun/agentfsm/internal/agent"
	"github.com/coralrun/agentfsm/internal/embedgateway"
	"github.com/coralrun/agentfsm/internal/feedback"
	"github.com/coralrun/agentfsm/internal/llmgateway"
	"github.com/coralrun/agentfsm/internal/usage"
	"github.com/coralrun/agentfsm/internal/vectorstore"
	"github.com/coralrun/agentfsm/pkg/models"
	"github.com/google/uuid"
)

// DefaultBudget is the number of LLM calls a turn may spend before the
// loop gives up and synthesizes an apology reply.
const DefaultBudget = 8

const defaultVectorStoreTimeout = 30 * time.Second

// apologyMessage is sent to the user when a turn exhausts its LLM call
// budget without producing a successful reply.
const apologyMessage = "I'm having trouble completing this right now. Please try again in a moment."

// TurnRequest is everything ProcessTurn needs to run one turn.
type TurnRequest struct {
	Setting               *models.Setting
	Memory                models.Memory
	RequestTools          []models.RequestTool
	UserMessage           string
	RecallLastUserMessage bool
	EditedLastResponse    string
}

// ResultType classifies how a turn ended.
type ResultType string

const (
	ResultSuccess        ResultType = "success"
	ResultBudgetExceeded ResultType = "budget_exceeded"
	ResultError          ResultType = "error"
)

// TurnResult is everything ProcessTurn returns.
type TurnResult struct {
	// Response holds only the Steps produced during this turn (the new
	// user Step plus whatever the loop appended); Memory holds the full,
	// updated history including everything the caller passed in.
	Response          models.Memory
	Memory            models.Memory
	TotalInputTokens  int64
	TotalOutputTokens int64
	LLMCallCount      int64
	ResultType        ResultType
}

// sessionLock is a refcounted mutex: concurrent turns against the same
// session id serialize on it, and the entry is removed once the last
// holder releases it so the registry never grows unbounded.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Orchestrator wires the per-turn LLM agents, the action executor, and the
// feedback store together into the chat loop. It holds only process-wide
// shared state (the token counter, the session lock registry, metrics) —
// every LLM-facing component is constructed fresh inside ProcessTurn.
type Orchestrator struct {
	counter        *usage.Counter
	executor       *agent.Executor
	metrics        *Metrics
	budget         int
	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock
}

// New builds an Orchestrator. executorConcurrency is forwarded to the
// Action Executor's fan-out bound (0 uses its default).
func New(counter *usage.Counter, metrics *Metrics, executorConcurrency int) *Orchestrator {
	return &Orchestrator{
		counter:      counter,
		executor:     agent.NewExecutor(executorConcurrency),
		metrics:      metrics,
		budget:       DefaultBudget,
		sessionLocks: make(map[string]*sessionLock),
	}
}

func (o *Orchestrator) lockSession(sessionID string) func() {
	if strings.TrimSpace(sessionID) == "" {
		return func() {}
	}

	o.sessionLocksMu.Lock()
	lock := o.sessionLocks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		o.sessionLocks[sessionID] = lock
	}
	lock.refs++
	o.sessionLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.sessionLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(o.sessionLocks, sessionID)
		}
		o.sessionLocksMu.Unlock()
	}
}

// ProcessTurn runs one chat turn to completion.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if err := req.Setting.Validate(); err != nil {
		return TurnResult{}, fmt.Errorf("%w: %v", ErrSettingInvalid, err)
	}
	setting := req.Setting

	sessionID := fmt.Sprintf("%s:%s", setting.AgentName, uuid.NewString())
	unlock := o.lockSession(sessionID)
	defer unlock()

	start := time.Now()
	memory := req.Memory
	applyPreconditions(&memory, req)
	turnStart := len(memory.Steps)

	if strings.TrimSpace(req.UserMessage) != "" {
		memory.Append(models.Step{Role: models.RoleUser, Content: req.UserMessage})
	}

	var feedbacks []models.Feedback
	if setting.FeedbackEnabled() {
		var err error
		feedbacks, err = o.retrieveFeedback(ctx, setting, req.UserMessage)
		if err != nil {
			slog.Warn("feedback retrieval failed, continuing without it",
				"agent_name", setting.AgentName, "error", err)
		}
	}

	counter := o.counter
	gatewayCoords := setting.ChatModel
	tools := agent.NewToolSet(req.RequestTools)

	var llmCallCount int
	result := ResultSuccess
	var turnErr error

loop:
	for llmCallCount < o.budget {
		if ctx.Err() != nil {
			result, turnErr = ResultError, &agent.LoopError{
				Phase: agent.PhaseInit, Iteration: llmCallCount, Cause: agent.ErrContextCancelled,
			}
			break loop
		}

		gateway := llmgateway.New(gatewayCoords, sessionID, counter)
		bounded := memory.Tail(maxHistory(gatewayCoords))

		// State tracking walks memory for the last assistant step's state
		// name, so selectState gets the full, unbounded history. The
		// state-select and new-state prompts are built from that same full
		// history; only the select-actions prompt is capped by max_history_len.
		state, err := o.selectState(ctx, gateway, setting, memory.Steps, feedbacks)
		llmCallCount++
		if err != nil {
			result, turnErr = ResultError, &agent.LoopError{
				Phase: agent.PhaseStream, Iteration: llmCallCount, Message: "state selection failed", Cause: err,
			}
			break loop
		}

		actionsAgent := agent.NewSelectActionsAgent(gateway)
		actions, err := actionsAgent.Select(ctx, setting.GlobalPrompt, state, bounded, feedbacks, tools)
		llmCallCount++
		if err != nil {
			result, turnErr = ResultError, &agent.LoopError{
				Phase: agent.PhaseStream, Iteration: llmCallCount, Message: "action selection failed", Cause: err,
			}
			break loop
		}

		if len(actions) == 0 {
			continue
		}

		steps, terminated := o.executor.ExecuteBatch(ctx, actions, tools)
		for i := range steps {
			steps[i].StateName = state.Name
			memory.Append(steps[i])
		}
		if ctx.Err() != nil {
			result, turnErr = ResultError, &agent.LoopError{
				Phase: agent.PhaseExecuteTools, Iteration: llmCallCount, Cause: agent.ErrContextCancelled,
			}
			break loop
		}
		if terminated {
			slog.Debug("turn loop phase", "phase", agent.PhaseComplete, "agent_name", setting.AgentName, "iteration", llmCallCount)
			break loop
		}
		slog.Debug("turn loop phase", "phase", agent.PhaseContinue, "agent_name", setting.AgentName, "iteration", llmCallCount)
	}

	if result == ResultSuccess && !terminatedSuccessfully(models.Memory{Steps: memory.Steps[turnStart:]}) {
		result = ResultBudgetExceeded
		appendApology(&memory)
		if o.metrics != nil {
			o.metrics.BudgetExceededTotal.WithLabelValues(setting.AgentName).Inc()
		}
		slog.Warn("turn loop exhausted its budget",
			"error", (&agent.LoopError{Phase: agent.PhaseComplete, Iteration: llmCallCount, Cause: agent.ErrMaxIterations}).Error(),
			"agent_name", setting.AgentName,
		)
	}

	if result == ResultError {
		appendErrorReply(&memory, turnErr)
	}

	memory.CollapseDuplicateReplies(models.BuiltinSendMessageToUser)
	if turnStart > len(memory.Steps) {
		turnStart = len(memory.Steps)
	}

	totals := counter.Snapshot(sessionID)
	counter.Reset(sessionID)

	if o.metrics != nil {
		o.metrics.TurnsTotal.WithLabelValues(setting.AgentName, string(result)).Inc()
		o.metrics.LLMCallsTotal.WithLabelValues(setting.AgentName).Add(float64(llmCallCount))
		o.metrics.TurnDuration.WithLabelValues(setting.AgentName).Observe(time.Since(start).Seconds())
	}

	slog.Info("turn completed",
		"agent_name", setting.AgentName,
		"result_type", result,
		"llm_call_count", llmCallCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return TurnResult{
		Response:          models.Memory{Steps: append([]models.Step{}, memory.Steps[turnStart:]...)},
		Memory:            memory,
		TotalInputTokens:  totals.TotalInputTokens,
		TotalOutputTokens: totals.TotalOutputTokens,
		LLMCallCount:      int64(llmCallCount),
		ResultType:        result,
	}, nil
}

// applyPreconditions mutates memory in place per the request's edit flags,
// applied before the new user message (if any) is appended.
func applyPreconditions(memory *models.Memory, req TurnRequest) {
	if req.RecallLastUserMessage {
		recallLastUserMessage(memory)
	}
	if req.EditedLastResponse != "" {
		editLastResponse(memory, req.EditedLastResponse)
	}
}

// recallLastUserMessage strips the trailing user Step and every assistant
// Step produced in response to it, so the turn can be redriven from
// scratch with a replacement user message.
func recallLastUserMessage(memory *models.Memory) {
	steps := memory.Steps
	i := len(steps) - 1
	for i >= 0 && steps[i].Role == models.RoleAssistant {
		i--
	}
	if i >= 0 && steps[i].Role == models.RoleUser {
		i--
	}
	memory.Steps = steps[:i+1]
}

// editLastResponse overwrites the most recent send_message_to_user Step's
// content in place, used when the caller wants to correct what the agent
// last said without redriving the whole turn.
func editLastResponse(memory *models.Memory, content string) {
	for i := len(memory.Steps) - 1; i >= 0; i-- {
		step := &memory.Steps[i]
		if step.IsSendMessageToUser(models.BuiltinSendMessageToUser) {
			step.Action.Arguments["agent_message"] = content
			if step.Result != nil {
				step.Result.Content = content
			}
			return
		}
	}
}

func (o *Orchestrator) retrieveFeedback(ctx context.Context, setting *models.Setting, query string) ([]models.Feedback, error) {
	vsTimeout := setting.VectorStoreTimeout
	if vsTimeout <= 0 {
		vsTimeout = defaultVectorStoreTimeout
	}
	vectors := vectorstore.New(setting.VectorDBURL, vsTimeout)
	embeddings := embedgateway.New(setting.EmbeddingModel)
	store := feedback.New(vectors, embeddings, setting.AgentName, setting.EmbeddingModel.VectorDim)

	if err := store.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return store.Retrieve(ctx, query, setting.TopK, nil)
}

// selectState chooses the next state: StateSelectAgent over the configured
// FSM when one exists, falling through to the New-State Agent when the FSM
// is empty or has no reachable candidate from the current state. On the
// very first turn there is no current state, so every declared state is a
// candidate and the StateSelectAgent picks among them.
func (o *Orchestrator) selectState(ctx context.Context, gateway *llmgateway.Gateway, setting *models.Setting, history []models.Step, feedbacks []models.Feedback) (models.State, error) {
	fsm := setting.StateMachine
	if fsm == nil || len(fsm.States) == 0 {
		return agent.NewNewStateAgent(gateway).Synthesize(ctx, history)
	}

	stateSelect := agent.NewStateSelectAgent(gateway)
	state, err := stateSelect.Select(ctx, fsm, history, feedbacks)
	if err == agent.ErrNoCandidates {
		if entry, ok := fsm.Get(fsm.Entry()); ok && len(history) == 0 {
			return entry, nil
		}
		return agent.NewNewStateAgent(gateway).Synthesize(ctx, history)
	}
	return state, err
}

func maxHistory(coords models.ChatModelCoordinates) int {
	return coords.MaxHistoryLen
}

// terminatedSuccessfully reports whether the most recent Step in memory is
// a successful send_message_to_user reply.
func terminatedSuccessfully(memory models.Memory) bool {
	if len(memory.Steps) == 0 {
		return false
	}
	last := memory.Steps[len(memory.Steps)-1]
	return last.IsSendMessageToUser(models.BuiltinSendMessageToUser) &&
		last.Result != nil && last.Result.ExecState == models.ExecSuccess
}

func appendApology(memory *models.Memory) {
	action := models.Action{
		Name:      models.BuiltinSendMessageToUser,
		Arguments: map[string]any{"agent_message": apologyMessage},
	}
	memory.Append(models.Step{
		Role:   models.RoleAssistant,
		Action: &action,
		Result: &models.Result{Content: apologyMessage, ExecState: models.ExecSuccess},
	})
}

func appendErrorReply(memory *models.Memory, cause error) {
	message := apologyMessage
	action := models.Action{
		Name:      models.BuiltinSendMessageToUser,
		Arguments: map[string]any{"agent_message": message},
	}
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	memory.Append(models.Step{
		Role:   models.RoleAssistant,
		Action: &action,
		Result: &models.Result{Content: message, Error: errText, ExecState: models.ExecFailed},
	})
}
