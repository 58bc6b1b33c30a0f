package agent

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/coralrun/agentfsm/pkg/models"
)

const stateSelectTemplate = `Choose the next conversation state from the candidates below.

Candidates:
{{range .Candidates}}- {{.Name}}: {{.Scenario}} ({{.Instruction}})
{{end}}
Recent conversation:
{{range .History}}{{if eq .Role "user"}}user: {{.Content}}{{else if .Result}}assistant: {{.Result.Content}}{{end}}
{{end}}
{{if .Feedbacks}}Similar past exchanges:
{{range .Feedbacks}}- {{.Observation.Name}}: {{.Observation.Content}} -> {{.Action.Name}}: {{.Action.Content}}
{{end}}{{end}}
Reply with a JSON object: {"state_name": <one of the candidate names>, "reason": <short text>}.`

const stateSelectRetryTemplate = `Your previous choice "{{.Invalid}}" is not one of the allowed candidates. You must pick one of: {{.Names}}.

Reply with a JSON object: {"state_name": <one of the candidate names>, "reason": <short text>}.`

const newStateTemplate = `No fixed state machine is configured for this agent. Based on the
conversation so far, synthesize a single transient state describing what
the assistant should do next.

Recent conversation:
{{range .History}}{{if eq .Role "user"}}user: {{.Content}}{{else if .Result}}assistant: {{.Result.Content}}{{end}}
{{end}}
Reply with a JSON object: {"name": <short label>, "scenario": <when this state applies>, "instruction": <what the assistant should do>}.`

var (
	stateSelectTmpl      = template.Must(template.New("state_select").Parse(stateSelectTemplate))
	stateSelectRetryTmpl = template.Must(template.New("state_select_retry").Parse(stateSelectRetryTemplate))
	newStateTmpl         = template.Must(template.New("new_state").Parse(newStateTemplate))
)

func renderTmpl(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Sprintf("template render error: %v", err)
	}
	return buf.String()
}

func buildStateSelectPrompt(candidates []models.State, history []models.Step, feedbacks []models.Feedback) string {
	return renderTmpl(stateSelectTmpl, map[string]any{
		"Candidates": candidates,
		"History":    history,
		"Feedbacks":  feedbacks,
	})
}

func buildStateSelectRetryPrompt(invalid string, candidates []models.State) string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return renderTmpl(stateSelectRetryTmpl, map[string]any{
		"Invalid": invalid,
		"Names":   strings.Join(names, ", "),
	})
}

// buildSelectActionsFeedbackBlock renders retrieved feedback as a "Similar
// past exchanges" section appended to the Select-Actions Agent's system
// prompt, one line of canonical text per feedback. Returns "" when there is
// no feedback to show.
func buildSelectActionsFeedbackBlock(feedbacks []models.Feedback) string {
	if len(feedbacks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Similar past exchanges:\n")
	for i := range feedbacks {
		b.WriteString("- ")
		b.WriteString(feedbacks[i].CanonicalText())
		b.WriteString("\n")
	}
	return b.String()
}

func buildNewStatePrompt(history []models.Step) string {
	return renderTmpl(newStateTmpl, map[string]any{"History": history})
}

var stateSelectResponseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"state_name": map[string]any{"type": "string"},
		"reason":     map[string]any{"type": "string"},
	},
	"required": []string{"state_name"},
}

var newStateResponseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":        map[string]any{"type": "string"},
		"scenario":    map[string]any{"type": "string"},
		"instruction": map[string]any{"type": "string"},
	},
	"required": []string{"name", "scenario", "instruction"},
}
