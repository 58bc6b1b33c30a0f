// Package models holds the data types shared across the chat runtime:
// per-request settings, the FSM model, conversation memory, stored
// feedback, and tool descriptors.
package models

import "time"

// ChatModelCoordinates locates and configures the chat completion model used
// for a turn.
type ChatModelCoordinates struct {
	BaseURL             string        `json:"base_url" yaml:"base_url"`
	APIKey              string        `json:"api_key" yaml:"api_key"`
	Model               string        `json:"model" yaml:"model"`
	Temperature         float32       `json:"temperature" yaml:"temperature"`
	TopP                float32       `json:"top_p" yaml:"top_p"`
	MaxHistoryLen       int           `json:"max_history_len" yaml:"max_history_len"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty" yaml:"max_completion_tokens,omitempty"`
	RequestTimeout      time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

// EmbeddingModelCoordinates locates and configures the embedding model used by
// the feedback store.
type EmbeddingModelCoordinates struct {
	BaseURL        string        `json:"base_url" yaml:"base_url"`
	APIKey         string        `json:"api_key" yaml:"api_key"`
	Model          string        `json:"model" yaml:"model"`
	VectorDim      int           `json:"vector_dim" yaml:"vector_dim"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	BatchSize      int           `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// Setting is the immutable per-request configuration for one turn.
type Setting struct {
	AgentName         string                    `json:"agent_name" yaml:"agent_name"`
	ChatModel         ChatModelCoordinates      `json:"chat_model" yaml:"chat_model"`
	EmbeddingModel    EmbeddingModelCoordinates `json:"embedding_model" yaml:"embedding_model"`
	VectorDBURL       string                    `json:"vector_db_url,omitempty" yaml:"vector_db_url,omitempty"`
	VectorStoreTimeout time.Duration            `json:"vector_store_timeout,omitempty" yaml:"vector_store_timeout,omitempty"`
	ListPageLimit     int                       `json:"list_page_limit,omitempty" yaml:"list_page_limit,omitempty"`
	TopK              int                       `json:"top_k" yaml:"top_k"`
	GlobalPrompt      string                    `json:"global_prompt,omitempty" yaml:"global_prompt,omitempty"`
	StateMachine      *StateMachine             `json:"state_machine,omitempty" yaml:"state_machine,omitempty"`
}

// FeedbackEnabled reports whether this setting has a vector store configured.
// The feedback subsystem is a no-op whenever VectorDBURL is empty.
func (s *Setting) FeedbackEnabled() bool {
	return s != nil && s.VectorDBURL != ""
}

// Validate checks the ConfigError conditions for a turn: a non-empty agent
// name, a chat model API key (every turn calls the chat-completions
// endpoint), a positive vector dimension, an embedding model API key
// whenever feedback retrieval is enabled, and a non-negative top_k.
func (s *Setting) Validate() error {
	if s == nil {
		return errSettingNil
	}
	if s.AgentName == "" {
		return errAgentNameEmpty
	}
	if s.ChatModel.APIKey == "" {
		return errChatAPIKeyEmpty
	}
	if s.EmbeddingModel.VectorDim < 1 {
		return errVectorDimInvalid
	}
	if s.FeedbackEnabled() && s.EmbeddingModel.APIKey == "" {
		return errEmbeddingAPIKeyEmpty
	}
	if s.TopK < 0 {
		return errTopKNegative
	}
	return nil
}

// ValidateFeedbackAccess checks the subset of fields the feedback-store
// endpoints need: agent name, vector store location, vector dimension, and
// an embedding API key. It does not require a chat model, since these
// endpoints never call the chat-completions API.
func (s *Setting) ValidateFeedbackAccess() error {
	if s == nil {
		return errSettingNil
	}
	if s.AgentName == "" {
		return errAgentNameEmpty
	}
	if s.VectorDBURL == "" {
		return errVectorDBURLEmpty
	}
	if s.EmbeddingModel.VectorDim < 1 {
		return errVectorDimInvalid
	}
	if s.EmbeddingModel.APIKey == "" {
		return errEmbeddingAPIKeyEmpty
	}
	return nil
}
