package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coralrun/agentfsm/internal/llmgateway"
	"github.com/coralrun/agentfsm/internal/usage"
	"github.com/coralrun/agentfsm/pkg/models"
)

func jsonContentServer(t *testing.T, contents ...string) *httptest.Server {
	t.Helper()
	call := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := contents[call]
		if call < len(contents)-1 {
			call++
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":` +
			quoteJSON(content) + `},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
}

func quoteJSON(s string) string {
	out := `"`
	for _, r := range s {
		switch r {
		case '"':
			out += `\"`
		default:
			out += string(r)
		}
	}
	return out + `"`
}

func testGateway(t *testing.T, serverURL, sessionID string) *llmgateway.Gateway {
	t.Helper()
	return llmgateway.New(models.ChatModelCoordinates{BaseURL: serverURL, APIKey: "k", Model: "m"}, sessionID, usage.NewCounter())
}

func testFSM() *models.StateMachine {
	return &models.StateMachine{
		States: []models.State{
			{Name: "S1", NextStates: []string{"S2"}},
			{Name: "S2"},
		},
		EntryState: "S1",
	}
}

func TestStateSelectAgent_Select_ValidCandidate(t *testing.T) {
	server := jsonContentServer(t, `{"state_name":"S2","reason":"moving on"}`)
	defer server.Close()

	fsm := testFSM()
	history := []models.Step{{
		Role:      models.RoleAssistant,
		StateName: "S1",
		Action:    &models.Action{Name: "send_message_to_user"},
		Result:    &models.Result{Content: "hi", ExecState: models.ExecSuccess},
	}}

	agent := NewStateSelectAgent(testGateway(t, server.URL, "s1"))
	state, err := agent.Select(context.Background(), fsm, history, nil)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if state.Name != "S2" {
		t.Errorf("Select() = %q, want S2", state.Name)
	}
}

func TestStateSelectAgent_Select_RecoversFromInvalidChoice(t *testing.T) {
	server := jsonContentServer(t, `{"state_name":"S9"}`, `{"state_name":"S2"}`)
	defer server.Close()

	fsm := testFSM()
	history := []models.Step{{
		Role:      models.RoleAssistant,
		StateName: "S1",
		Action:    &models.Action{Name: "send_message_to_user"},
		Result:    &models.Result{Content: "hi", ExecState: models.ExecSuccess},
	}}

	agent := NewStateSelectAgent(testGateway(t, server.URL, "s2"))
	state, err := agent.Select(context.Background(), fsm, history, nil)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if state.Name != "S2" {
		t.Errorf("Select() = %q, want S2 after re-ask", state.Name)
	}
}

func TestStateSelectAgent_Select_NoCandidatesReturnsErr(t *testing.T) {
	fsm := &models.StateMachine{States: []models.State{{Name: "only"}}}
	agent := NewStateSelectAgent(testGateway(t, "http://unused", "s3"))
	history := []models.Step{{Role: models.RoleAssistant, StateName: "only"}}
	_, err := agent.Select(context.Background(), fsm, history, nil)
	if err != ErrNoCandidates {
		t.Errorf("Select() error = %v, want ErrNoCandidates", err)
	}
}
