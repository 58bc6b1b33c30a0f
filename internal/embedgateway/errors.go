package embedgateway

import (
	"errors"
	"fmt"
)

var errNoEmbeddingReturned = errors.New("embedgateway: no embedding returned")

// DimensionMismatch indicates the provider returned a vector whose length
// does not match the Setting's declared vector_dim.
type DimensionMismatch struct {
	Model    string
	Expected int
	Got      int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("embedgateway: model %q returned dimension %d, expected %d", e.Model, e.Got, e.Expected)
}

// RequestError wraps a transport-level failure calling the embeddings
// endpoint.
type RequestError struct {
	Cause error
}

func (e *RequestError) Error() string { return fmt.Sprintf("embedgateway: request failed: %v", e.Cause) }
func (e *RequestError) Unwrap() error { return e.Cause }
