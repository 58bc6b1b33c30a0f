package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coralrun/agentfsm/pkg/models"
)

func toolCallServer(t *testing.T, toolCallsJSON, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		msg := `{"role":"assistant","content":` + quoteJSON(content) + `,"tool_calls":` + toolCallsJSON + `}`
		w.Write([]byte(`{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":` + msg + `,"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
}

func TestSelectActionsAgent_Select_ParsesMultipleToolCalls(t *testing.T) {
	server := toolCallServer(t, `[
		{"id":"call-1","type":"function","function":{"name":"weather","arguments":"{\"city\":\"X\"}"}},
		{"id":"call-2","type":"function","function":{"name":"send_message_to_user","arguments":"{\"agent_message\":\"It's sunny\"}"}}
	]`, "")
	defer server.Close()

	agent := NewSelectActionsAgent(testGateway(t, server.URL, "s1"))
	tools := NewToolSet([]models.RequestTool{{Name: "weather", Method: models.MethodGET, URL: "http://example.com/w"}})

	actions, err := agent.Select(context.Background(), "be helpful", models.State{Name: "S1"}, nil, nil, tools)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].Name != "weather" || actions[0].Arguments["city"] != "X" {
		t.Errorf("unexpected first action: %+v", actions[0])
	}
	if actions[1].Name != models.BuiltinSendMessageToUser || actions[1].Arguments["agent_message"] != "It's sunny" {
		t.Errorf("unexpected second action: %+v", actions[1])
	}
}

func TestSelectActionsAgent_Select_SynthesizesReplyFromTextOnly(t *testing.T) {
	server := toolCallServer(t, `null`, "just chatting, no tools needed")
	defer server.Close()

	agent := NewSelectActionsAgent(testGateway(t, server.URL, "s2"))
	tools := NewToolSet(nil)

	actions, err := agent.Select(context.Background(), "", models.State{}, nil, nil, tools)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 synthesized action, got %d", len(actions))
	}
	if actions[0].Name != models.BuiltinSendMessageToUser {
		t.Errorf("expected synthesized send_message_to_user, got %q", actions[0].Name)
	}
	if actions[0].Arguments["agent_message"] != "just chatting, no tools needed" {
		t.Errorf("unexpected agent_message: %v", actions[0].Arguments["agent_message"])
	}
}

// TestSelectActionsAgent_Select_PromptContainsRetrievedFeedbackCanonicalText
// exercises scenario S5: the SelectActionsAgent prompt contains the
// canonical text of a retrieved feedback.
func TestSelectActionsAgent_Select_PromptContainsRetrievedFeedbackCanonicalText(t *testing.T) {
	var capturedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		capturedBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"send_message_to_user","arguments":"{\"agent_message\":\"ok\"}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer server.Close()

	fb := models.Feedback{
		Observation: models.Observation{Name: "asked for refund", Content: "user wants a refund for order 42"},
		Action:      models.ActionRecord{Name: "issue_refund", Content: "refunded order 42"},
	}

	agent := NewSelectActionsAgent(testGateway(t, server.URL, "s4"))
	tools := NewToolSet(nil)

	_, err := agent.Select(context.Background(), "be helpful", models.State{Name: "S1"}, nil, []models.Feedback{fb}, tools)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	// The body is JSON, so the newline inside the canonical text arrives escaped.
	wantText := strings.ReplaceAll(fb.CanonicalText(), "\n", `\n`)
	if !strings.Contains(capturedBody, wantText) {
		t.Errorf("request body does not contain retrieved feedback's canonical text %q; body = %s", wantText, capturedBody)
	}
}

func TestSelectActionsAgent_Select_DefaultsMissingArguments(t *testing.T) {
	server := toolCallServer(t, `[{"id":"call-1","type":"function","function":{"name":"ping","arguments":""}}]`, "")
	defer server.Close()

	agent := NewSelectActionsAgent(testGateway(t, server.URL, "s3"))
	tools := NewToolSet([]models.RequestTool{{Name: "ping", Method: models.MethodGET, URL: "http://example.com/ping"}})

	actions, err := agent.Select(context.Background(), "", models.State{}, nil, nil, tools)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(actions) != 1 || actions[0].Arguments == nil {
		t.Fatalf("expected 1 action with non-nil empty arguments, got %+v", actions)
	}
	if len(actions[0].Arguments) != 0 {
		t.Errorf("expected empty arguments map, got %v", actions[0].Arguments)
	}
}
