// Package feedback is the per-agent collection of observation/action pairs
// used to bias future action selection toward what worked before.
package feedback

import (
	"context"
	"fmt"

	"github.com/coralrun/agentfsm/internal/embedgateway"
	"github.com/coralrun/agentfsm/internal/vectorstore"
	"github.com/coralrun/agentfsm/pkg/models"
	"github.com/google/uuid"
)

// Store ties a vector store client and an embedding gateway to one agent's
// collection, implementing ensure/add/list/retrieve/clear/drop.
type Store struct {
	vectors    *vectorstore.Client
	embeddings *embedgateway.Gateway
	agentName  string
	collection string
	vectorDim  int
}

// New builds a Store for agentName against the given backing clients.
func New(vectors *vectorstore.Client, embeddings *embedgateway.Gateway, agentName string, vectorDim int) *Store {
	return &Store{
		vectors:    vectors,
		embeddings: embeddings,
		agentName:  agentName,
		collection: vectorstore.SanitizeCollectionName(agentName),
		vectorDim:  vectorDim,
	}
}

// EnsureReady creates the agent's collection if it does not already exist.
func (s *Store) EnsureReady(ctx context.Context) error {
	return s.vectors.EnsureCollection(ctx, s.collection, s.vectorDim)
}

// Add embeds the observation/action pair and inserts it under a freshly
// generated id. Every call mints its own id even when the canonical text
// matches an existing entry exactly: the store does not deduplicate, either
// on insert or on retrieval.
func (s *Store) Add(ctx context.Context, obs models.Observation, act models.ActionRecord, stateName string) (*models.Feedback, error) {
	fb := &models.Feedback{
		ID:          uuid.NewString(),
		AgentName:   s.agentName,
		Observation: obs,
		Action:      act,
		StateName:   stateName,
	}
	fb.Tags = fb.DeriveTags()

	vector, err := s.embeddings.Embed(ctx, fb.CanonicalText())
	if err != nil {
		return nil, fmt.Errorf("feedback: embed: %w", err)
	}
	fb.Vector = vector

	properties := map[string]any{
		"agent_name":           fb.AgentName,
		"observation_name":     fb.Observation.Name,
		"observation_content":  fb.Observation.Content,
		"action_name":          fb.Action.Name,
		"action_content":       fb.Action.Content,
		"state_name":           fb.StateName,
		"tags":                 fb.Tags,
	}
	if err := s.vectors.Insert(ctx, s.collection, fb.ID, properties, vector); err != nil {
		return nil, fmt.Errorf("feedback: insert: %w", err)
	}
	return fb, nil
}

// Retrieve embeds the query text and returns the topK nearest feedback
// entries, optionally narrowed to entries carrying every tag in tagFilter.
func (s *Store) Retrieve(ctx context.Context, queryText string, topK int, tagFilter []string) ([]models.Feedback, error) {
	vector, err := s.embeddings.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("feedback: embed query: %w", err)
	}

	matches, err := s.vectors.QueryByVector(ctx, s.collection, vector, topK, tagFilter)
	if err != nil {
		return nil, fmt.Errorf("feedback: query: %w", err)
	}
	return matchesToFeedback(s.agentName, matches), nil
}

// List paginates the full collection without any similarity ranking.
func (s *Store) List(ctx context.Context, offset, limit int) ([]models.Feedback, error) {
	matches, err := s.vectors.List(ctx, s.collection, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("feedback: list: %w", err)
	}
	return matchesToFeedback(s.agentName, matches), nil
}

// Clear removes every entry in the collection but keeps it registered.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.vectors.DeleteAll(ctx, s.collection); err != nil {
		return fmt.Errorf("feedback: clear: %w", err)
	}
	return nil
}

// Drop removes the collection itself.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.vectors.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("feedback: drop: %w", err)
	}
	return nil
}

func matchesToFeedback(agentName string, matches []vectorstore.Match) []models.Feedback {
	out := make([]models.Feedback, 0, len(matches))
	for _, m := range matches {
		out = append(out, models.Feedback{
			ID:          m.ID,
			AgentName:   agentName,
			Observation: models.Observation{Name: stringProp(m.Properties, "observation_name"), Content: stringProp(m.Properties, "observation_content")},
			Action:      models.ActionRecord{Name: stringProp(m.Properties, "action_name"), Content: stringProp(m.Properties, "action_content")},
			StateName:   stringProp(m.Properties, "state_name"),
			Tags:        stringSliceProp(m.Properties, "tags"),
			Score:       m.Score,
		})
	}
	return out
}

func stringProp(properties map[string]any, key string) string {
	v, ok := properties[key].(string)
	if !ok {
		return ""
	}
	return v
}

func stringSliceProp(properties map[string]any, key string) []string {
	raw, ok := properties[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
