// Package httpapi exposes the chat orchestrator and feedback store over the
// six-endpoint HTTP surface: one turn, feedback insert/list/clear, collection
// drop, and a health check, plus a Prometheus metrics endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coralrun/agentfsm/internal/embedgateway"
	"github.com/coralrun/agentfsm/internal/feedback"
	"github.com/coralrun/agentfsm/internal/orchestrator"
	"github.com/coralrun/agentfsm/internal/vectorstore"
	"github.com/coralrun/agentfsm/pkg/models"
)

const defaultVectorStoreTimeout = 30 * time.Second
const defaultListLimit = 50

// Server wires an Orchestrator into a stdlib net/http.ServeMux.
type Server struct {
	orc *orchestrator.Orchestrator
	mux *http.ServeMux
}

// New builds a Server. Call Handler() to get the http.Handler to serve.
func New(orc *orchestrator.Orchestrator) *Server {
	s := &Server{orc: orc, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /learn", s.handleLearn)
	s.mux.HandleFunc("GET /feedbacks", s.handleListFeedbacks)
	s.mux.HandleFunc("DELETE /feedbacks", s.handleClearFeedbacks)
	s.mux.HandleFunc("DELETE /collections/{agent_name}", s.handleDropCollection)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the request-logging-wrapped mux ready to hand to
// http.Server.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// --- POST /chat ---

type chatRequestBody struct {
	UserMessage           json.RawMessage      `json:"user_message"`
	EditedLastResponse    string               `json:"edited_last_response,omitempty"`
	RecallLastUserMessage bool                 `json:"recall_last_user_message,omitempty"`
	Settings              models.Setting       `json:"settings"`
	Memory                models.Memory        `json:"memory"`
	RequestTools          []models.RequestTool `json:"request_tools,omitempty"`
}

type chatResponseBody struct {
	Response         models.Memory `json:"response"`
	Memory           models.Memory `json:"memory"`
	ResultType       string        `json:"result_type"`
	LLMCallingTimes  int64         `json:"llm_calling_times"`
	TotalInputToken  int64         `json:"total_input_token"`
	TotalOutputToken int64         `json:"total_output_token"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	userText, systemPrefix, err := normalizeUserMessage(body.UserMessage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	settings := body.Settings
	if systemPrefix != "" {
		if settings.GlobalPrompt != "" {
			settings.GlobalPrompt = systemPrefix + "\n\n" + settings.GlobalPrompt
		} else {
			settings.GlobalPrompt = systemPrefix
		}
	}

	result, err := s.orc.ProcessTurn(r.Context(), orchestrator.TurnRequest{
		Setting:               &settings,
		Memory:                body.Memory,
		RequestTools:          body.RequestTools,
		UserMessage:           userText,
		RecallLastUserMessage: body.RecallLastUserMessage,
		EditedLastResponse:    body.EditedLastResponse,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrSettingInvalid) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponseBody{
		Response:         result.Response,
		Memory:           result.Memory,
		ResultType:       string(result.ResultType),
		LLMCallingTimes:  result.LLMCallCount,
		TotalInputToken:  result.TotalInputTokens,
		TotalOutputToken: result.TotalOutputTokens,
	})
}

// --- POST /learn ---

type learnRequestBody struct {
	Settings  models.Setting  `json:"settings"`
	Feedbacks []learnFeedback `json:"feedbacks"`
}

type learnFeedback struct {
	Observation models.Observation  `json:"observation"`
	Action      models.ActionRecord `json:"action"`
	StateName   string              `json:"state_name,omitempty"`
}

type learnResponseBody struct {
	Status string   `json:"status"`
	Data   []string `json:"data"`
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var body learnRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := body.Settings.ValidateFeedbackAccess(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	store, err := feedbackStore(&body.Settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := store.EnsureReady(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, learnResponseBody{Status: "Failed", Data: nil})
		return
	}

	ids := make([]string, 0, len(body.Feedbacks))
	for _, fb := range body.Feedbacks {
		stored, err := store.Add(r.Context(), fb.Observation, fb.Action, fb.StateName)
		if err != nil {
			writeJSON(w, http.StatusOK, learnResponseBody{Status: "Failed", Data: ids})
			return
		}
		ids = append(ids, stored.ID)
	}
	writeJSON(w, http.StatusOK, learnResponseBody{Status: "Success", Data: ids})
}

// --- GET /feedbacks ---

func (s *Server) handleListFeedbacks(w http.ResponseWriter, r *http.Request) {
	setting, err := settingFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	store, err := feedbackStore(setting)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}

	feedbacks, err := store.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbacks)
}

// --- DELETE /feedbacks ---

func (s *Server) handleClearFeedbacks(w http.ResponseWriter, r *http.Request) {
	setting, err := settingFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	store, err := feedbackStore(setting)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- DELETE /collections/{agent_name} ---

func (s *Server) handleDropCollection(w http.ResponseWriter, r *http.Request) {
	agentName := r.PathValue("agent_name")
	vectorDBURL := r.URL.Query().Get("vector_db_url")
	setting := &models.Setting{
		AgentName:   agentName,
		VectorDBURL: vectorDBURL,
		EmbeddingModel: models.EmbeddingModelCoordinates{
			VectorDim: 1,
			APIKey:    r.URL.Query().Get("api_key"),
		},
	}
	if err := setting.ValidateFeedbackAccess(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	store, err := feedbackStore(setting)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := store.Drop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- GET /health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// settingFromQuery builds the minimal Setting the feedback endpoints need
// from agent_name/vector_db_url query parameters.
func settingFromQuery(r *http.Request) (*models.Setting, error) {
	setting := &models.Setting{
		AgentName:   r.URL.Query().Get("agent_name"),
		VectorDBURL: r.URL.Query().Get("vector_db_url"),
		EmbeddingModel: models.EmbeddingModelCoordinates{
			VectorDim: 1,
			APIKey:    r.URL.Query().Get("api_key"),
		},
	}
	if err := setting.ValidateFeedbackAccess(); err != nil {
		return nil, err
	}
	return setting, nil
}

// feedbackStore builds a Store against the setting's vector_db_url, one per
// request: the vector store client is stateless and cheap to construct, and
// different requests may target different agents or vector databases.
func feedbackStore(setting *models.Setting) (*feedback.Store, error) {
	if setting.VectorDBURL == "" {
		return nil, errors.New("httpapi: vector_db_url is required")
	}
	vsTimeout := setting.VectorStoreTimeout
	if vsTimeout <= 0 {
		vsTimeout = defaultVectorStoreTimeout
	}
	vectors := vectorstore.New(setting.VectorDBURL, vsTimeout)
	embeddings := embedgateway.New(setting.EmbeddingModel)
	return feedback.New(vectors, embeddings, setting.AgentName, setting.EmbeddingModel.VectorDim), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
