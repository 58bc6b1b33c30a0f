package models

import "testing"

func TestSetting_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Setting
		wantErr error
	}{
		{
			name: "valid, feedback disabled",
			s: Setting{
				AgentName:      "Billing Agent",
				ChatModel:      ChatModelCoordinates{APIKey: "k"},
				EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4},
			},
			wantErr: nil,
		},
		{
			name: "valid, feedback enabled",
			s: Setting{
				AgentName:      "Billing Agent",
				ChatModel:      ChatModelCoordinates{APIKey: "k"},
				EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4, APIKey: "ek"},
				VectorDBURL:    "http://weaviate:8080",
			},
			wantErr: nil,
		},
		{
			name:    "empty agent name",
			s:       Setting{ChatModel: ChatModelCoordinates{APIKey: "k"}, EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4}},
			wantErr: errAgentNameEmpty,
		},
		{
			name:    "missing chat api key",
			s:       Setting{AgentName: "a", EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4}},
			wantErr: errChatAPIKeyEmpty,
		},
		{
			name:    "invalid vector dim",
			s:       Setting{AgentName: "a", ChatModel: ChatModelCoordinates{APIKey: "k"}},
			wantErr: errVectorDimInvalid,
		},
		{
			name: "feedback enabled without embedding api key",
			s: Setting{
				AgentName:      "a",
				ChatModel:      ChatModelCoordinates{APIKey: "k"},
				EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4},
				VectorDBURL:    "http://weaviate:8080",
			},
			wantErr: errEmbeddingAPIKeyEmpty,
		},
		{
			name: "negative top_k",
			s: Setting{
				AgentName:      "a",
				ChatModel:      ChatModelCoordinates{APIKey: "k"},
				EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4},
				TopK:           -1,
			},
			wantErr: errTopKNegative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetting_ValidateFeedbackAccess(t *testing.T) {
	tests := []struct {
		name    string
		s       Setting
		wantErr error
	}{
		{
			name: "valid",
			s: Setting{
				AgentName:      "Billing Agent",
				VectorDBURL:    "http://weaviate:8080",
				EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4, APIKey: "ek"},
			},
			wantErr: nil,
		},
		{
			name:    "missing agent name",
			s:       Setting{VectorDBURL: "http://weaviate:8080", EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4, APIKey: "ek"}},
			wantErr: errAgentNameEmpty,
		},
		{
			name:    "missing vector_db_url",
			s:       Setting{AgentName: "a", EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4, APIKey: "ek"}},
			wantErr: errVectorDBURLEmpty,
		},
		{
			name:    "invalid vector dim",
			s:       Setting{AgentName: "a", VectorDBURL: "http://weaviate:8080", EmbeddingModel: EmbeddingModelCoordinates{APIKey: "ek"}},
			wantErr: errVectorDimInvalid,
		},
		{
			name:    "missing embedding api key",
			s:       Setting{AgentName: "a", VectorDBURL: "http://weaviate:8080", EmbeddingModel: EmbeddingModelCoordinates{VectorDim: 4}},
			wantErr: errEmbeddingAPIKeyEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.ValidateFeedbackAccess(); err != tt.wantErr {
				t.Errorf("ValidateFeedbackAccess() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
