// Package vectorstore is a thin REST client for a Weaviate-shaped schema/
// objects/graphql API: HNSW index, cosine distance, a caller-supplied
// vectorizer of "none", and the feedback store's collection-per-agent
// layout.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	efConstruction = 128
	maxConnections = 64
	// ListHardCap bounds a single list() call, matching the compatibility
	// limit the reference vector store imposes.
	ListHardCap = 10000
)

// Client talks to the vector store over plain net/http; no SDK exists for
// this protocol in the example corpus this was grounded on.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// New builds a Client against baseURL with the given per-request timeout,
// defaulting to 30s when unset.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// SanitizeCollectionName maps an agent_name to a Weaviate class name:
// [a-zA-Z0-9_] only, first letter capitalized (class names must start with
// an uppercase letter).
func SanitizeCollectionName(agentName string) string {
	var b strings.Builder
	for _, r := range agentName {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "Agent"
	}
	runes := []rune(name)
	if unicode.IsLetter(runes[0]) {
		runes[0] = unicode.ToUpper(runes[0])
	} else {
		runes = append([]rune{'A'}, runes...)
	}
	return string(runes)
}

type schemaResponse struct {
	Class            string         `json:"class"`
	VectorIndexConfig map[string]any `json:"vectorIndexConfig"`
	Properties       []schemaProperty `json:"properties"`
}

type schemaProperty struct {
	Name         string   `json:"name"`
	DataType     []string `json:"dataType"`
	Description  string   `json:"description,omitempty"`
}

// dimensionPropertyName stores the declared vector dimension as a class
// property annotation, since Weaviate's schema API carries no dedicated
// vector-dimension field.
const dimensionPropertyName = "_vector_dim"

// EnsureCollection is idempotent: creates the collection if absent,
// returns DimensionConflict if a collection with a different declared
// dimension already exists.
func (c *Client) EnsureCollection(ctx context.Context, collection string, vectorDim int) error {
	status, body, err := c.doRequest(ctx, http.MethodGet, "/v1/schema/"+collection, nil)
	if err != nil {
		return &StoreError{Op: "ensure_collection", Collection: collection, Cause: err}
	}

	if status == http.StatusNotFound {
		return c.createCollection(ctx, collection, vectorDim)
	}
	if status != http.StatusOK {
		return &StoreError{Op: "ensure_collection", Collection: collection, Cause: &HTTPError{StatusCode: status, Body: string(body)}}
	}

	var existing schemaResponse
	if err := json.Unmarshal(body, &existing); err != nil {
		return &StoreError{Op: "ensure_collection", Collection: collection, Cause: err}
	}
	if existingDim, ok := existingDimension(existing); ok && existingDim != vectorDim {
		return &DimensionConflict{Collection: collection, Existing: existingDim, Requested: vectorDim}
	}
	return nil
}

func existingDimension(schema schemaResponse) (int, bool) {
	for _, prop := range schema.Properties {
		if prop.Name == dimensionPropertyName && prop.Description != "" {
			if dim, err := strconv.Atoi(prop.Description); err == nil {
				return dim, true
			}
		}
	}
	return 0, false
}

func (c *Client) createCollection(ctx context.Context, collection string, vectorDim int) error {
	req := map[string]any{
		"class":      collection,
		"vectorizer": "none",
		"vectorIndexConfig": map[string]any{
			"distance":       "cosine",
			"efConstruction": efConstruction,
			"maxConnections": maxConnections,
		},
		"properties": []schemaProperty{
			{Name: dimensionPropertyName, DataType: []string{"string"}, Description: strconv.Itoa(vectorDim)},
		},
	}

	status, body, err := c.doRequest(ctx, http.MethodPost, "/v1/schema", req)
	if err != nil {
		return &StoreError{Op: "ensure_collection", Collection: collection, Cause: err}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &StoreError{Op: "ensure_collection", Collection: collection, Cause: &HTTPError{StatusCode: status, Body: string(body)}}
	}
	return nil
}

// Insert upserts an object by id.
func (c *Client) Insert(ctx context.Context, collection, id string, properties map[string]any, vector []float32) error {
	req := map[string]any{
		"id":         id,
		"class":      collection,
		"properties": properties,
		"vector":     vector,
	}
	status, body, err := c.doRequest(ctx, http.MethodPut, "/v1/objects/"+id, req)
	if err != nil {
		return &StoreError{Op: "insert", Collection: collection, Cause: err}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &StoreError{Op: "insert", Collection: collection, Cause: &HTTPError{StatusCode: status, Body: string(body)}}
	}
	return nil
}

// DeleteAll removes every object in the collection, keeping the collection
// itself, via a match-all batch delete.
func (c *Client) DeleteAll(ctx context.Context, collection string) error {
	req := map[string]any{
		"match": map[string]any{
			"class": collection,
			"where": map[string]any{
				"path":      []string{"_vector_dim"},
				"operator":  "Like",
				"valueText": "*",
			},
		},
	}
	status, body, err := c.doRequestWithBody(ctx, http.MethodDelete, "/v1/batch/objects", req)
	if err != nil {
		return &StoreError{Op: "delete_all", Collection: collection, Cause: err}
	}
	if status != http.StatusOK {
		return &StoreError{Op: "delete_all", Collection: collection, Cause: &HTTPError{StatusCode: status, Body: string(body)}}
	}
	return nil
}

// DeleteCollection drops the collection entirely.
func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	status, body, err := c.doRequest(ctx, http.MethodDelete, "/v1/schema/"+collection, nil)
	if err != nil {
		return &StoreError{Op: "delete_collection", Collection: collection, Cause: err}
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return &StoreError{Op: "delete_collection", Collection: collection, Cause: &HTTPError{StatusCode: status, Body: string(body)}}
	}
	return nil
}

// Match is one object returned from a query or list call.
type Match struct {
	ID         string
	Properties map[string]any
	Score      float32
}

// QueryByVector returns up to topK nearest objects, optionally filtered by
// a conjunction of tag equalities.
func (c *Client) QueryByVector(ctx context.Context, collection string, vector []float32, topK int, tagFilter []string) ([]Match, error) {
	query := buildNearVectorQuery(collection, vector, topK, tagFilter)
	status, body, err := c.doRequestWithBody(ctx, http.MethodPost, "/v1/graphql", map[string]any{"query": query})
	if err != nil {
		return nil, &StoreError{Op: "query_by_vector", Collection: collection, Cause: err}
	}
	if status != http.StatusOK {
		return nil, &StoreError{Op: "query_by_vector", Collection: collection, Cause: &HTTPError{StatusCode: status, Body: string(body)}}
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &StoreError{Op: "query_by_vector", Collection: collection, Cause: err}
	}
	return resp.matches(collection), nil
}

type graphQLResponse struct {
	Data map[string]map[string][]map[string]any `json:"data"`
}

func (r graphQLResponse) matches(collection string) []Match {
	var out []Match
	get, ok := r.Data["Get"]
	if !ok {
		return out
	}
	for _, obj := range get[collection] {
		m := Match{Properties: map[string]any{}}
		for k, v := range obj {
			if k == "_additional" {
				if additional, ok := v.(map[string]any); ok {
					if id, ok := additional["id"].(string); ok {
						m.ID = id
					}
					if dist, ok := additional["distance"].(float64); ok {
						m.Score = float32(1 - dist)
					}
				}
				continue
			}
			m.Properties[k] = v
		}
		out = append(out, m)
	}
	return out
}

func buildNearVectorQuery(collection string, vector []float32, topK int, tagFilter []string) string {
	vecLiteral := vectorLiteral(vector)

	var where string
	if len(tagFilter) > 0 {
		operands := make([]string, len(tagFilter))
		for i, tag := range tagFilter {
			operands[i] = fmt.Sprintf(`{path: ["tags"], operator: Equal, valueText: %q}`, tag)
		}
		where = fmt.Sprintf(`, where: {operator: And, operands: [%s]}`, strings.Join(operands, ", "))
	}

	return fmt.Sprintf(`{
  Get {
    %s(nearVector: {vector: %s}, limit: %d%s) {
      _additional { id distance }
      agent_name
      observation_name
      observation_content
      action_name
      action_content
      state_name
      tags
    }
  }
}`, collection, vecLiteral, topK, where)
}

func vectorLiteral(vector []float32) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// List performs paginated retrieval, enforcing the ListHardCap.
func (c *Client) List(ctx context.Context, collection string, offset, limit int) ([]Match, error) {
	if limit <= 0 || limit > ListHardCap {
		limit = ListHardCap
	}
	path := fmt.Sprintf("/v1/objects?class=%s&limit=%d&offset=%d", collection, limit, offset)
	status, body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, &StoreError{Op: "list", Collection: collection, Cause: err}
	}
	if status != http.StatusOK {
		return nil, &StoreError{Op: "list", Collection: collection, Cause: &HTTPError{StatusCode: status, Body: string(body)}}
	}

	var resp struct {
		Objects []struct {
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
		} `json:"objects"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &StoreError{Op: "list", Collection: collection, Cause: err}
	}

	out := make([]Match, len(resp.Objects))
	for i, obj := range resp.Objects {
		out[i] = Match{ID: obj.ID, Properties: obj.Properties}
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (int, []byte, error) {
	return c.doRequestWithBody(ctx, method, path, body)
}

func (c *Client) doRequestWithBody(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
