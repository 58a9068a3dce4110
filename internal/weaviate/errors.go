package weaviate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
)

// TransportError reports that the backend could not be reached or failed
// while serving a request.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RequestError reports that the backend answered but rejected the request.
type RequestError struct {
	Op     string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: rejected with status %d: %v", e.Op, e.Status, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// BulkFailure is one document rejected in a batch write.
type BulkFailure struct {
	DocumentID string
	Message    string
}

// BulkError reports that some documents of a batch were not written.
type BulkError struct {
	Type   string
	Total  int
	Failed []BulkFailure
}

func (e *BulkError) Error() string {
	msgs := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		msgs = append(msgs, f.DocumentID+": "+f.Message)
	}
	return fmt.Sprintf("bulk write of %s: %d of %d documents rejected (%s)",
		e.Type, len(e.Failed), e.Total, strings.Join(msgs, "; "))
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsBulk reports whether err is a partial batch failure.
func IsBulk(err error) bool {
	var be *BulkError
	return errors.As(err, &be)
}

// classify wraps a client error as a request or transport error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *fault.WeaviateClientError
	if errors.As(err, &ce) && ce.IsUnexpectedStatusCode && ce.StatusCode >= 400 && ce.StatusCode < 500 {
		return &RequestError{Op: op, Status: ce.StatusCode, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}
