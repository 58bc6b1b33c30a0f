package models

import "errors"

// Sentinel errors for Setting and StateMachine validation.
var (
	errSettingNil          = errors.New("models: setting is nil")
	errAgentNameEmpty      = errors.New("models: agent_name must be non-empty")
	errChatAPIKeyEmpty     = errors.New("models: chat_model.api_key must be non-empty")
	errEmbeddingAPIKeyEmpty = errors.New("models: embedding_model.api_key must be non-empty")
	errVectorDimInvalid    = errors.New("models: embedding_model.vector_dim must be >= 1")
	errVectorDBURLEmpty    = errors.New("models: vector_db_url must be non-empty")
	errTopKNegative        = errors.New("models: top_k must be >= 0")

	errStateNameEmpty  = errors.New("models: state name must be non-empty")
	errStateNameDup    = errors.New("models: duplicate state name")
	errUnknownState    = errors.New("models: next_states references an unknown state")
	errUnknownFreeState = errors.New("models: free_states references an unknown state")
	errUnknownEntry    = errors.New("models: entry_state references an unknown state")
)
