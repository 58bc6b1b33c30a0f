package models

import "time"

// Observation is the input half of a stored feedback pair: what the agent
// observed before acting.
type Observation struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ActionRecord is the output half of a stored feedback pair: what the agent
// did in response.
type ActionRecord struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Feedback is one document in the feedback store: an observation/action pair
// embedded and indexed for later retrieval.
type Feedback struct {
	ID          string       `json:"id"`
	AgentName   string       `json:"agent_name"`
	Observation Observation  `json:"observation"`
	Action      ActionRecord `json:"action"`
	StateName   string       `json:"state_name,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Vector      []float32    `json:"-"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
	Score       float32      `json:"score,omitempty"`
}

// CanonicalText renders the text that gets embedded for similarity search:
// "{observation.name}: {observation.content}\n{action.name}: {action.content}".
func (f *Feedback) CanonicalText() string {
	return f.Observation.Name + ": " + f.Observation.Content + "\n" + f.Action.Name + ": " + f.Action.Content
}

// DeriveTags computes the tag set from observation name and state name:
// {"observation_name:<name>", "state_name:<state_name>"}.
func (f *Feedback) DeriveTags() []string {
	var tags []string
	if f.Observation.Name != "" {
		tags = append(tags, "observation_name:"+f.Observation.Name)
	}
	if f.StateName != "" {
		tags = append(tags, "state_name:"+f.StateName)
	}
	return tags
}
