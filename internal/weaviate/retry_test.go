package weaviate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyClient fails Search with a scripted sequence of errors.
type flakyClient struct {
	*MockClient
	errs     []error
	attempts int
}

func (f *flakyClient) Search(ctx context.Context, q *models.Query) (*models.RawResultSet, error) {
	f.attempts++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.MockClient.Search(ctx, q)
}

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0.0,
	}
}

func TestRetryClient_RetriesTransport(t *testing.T) {
	transport := &TransportError{Op: "search", Err: errors.New("connection reset")}
	inner := &flakyClient{MockClient: NewMockClient(), errs: []error{transport, transport}}
	rc := NewRetryClient(inner, fastRetry())

	rs, err := rc.Search(context.Background(), &models.Query{})
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Equal(t, 3, inner.attempts)
}

func TestRetryClient_RequestErrorNotRetried(t *testing.T) {
	rejected := &RequestError{Op: "search", Status: 422, Err: errors.New("bad filter")}
	inner := &flakyClient{MockClient: NewMockClient(), errs: []error{rejected}}
	rc := NewRetryClient(inner, fastRetry())

	_, err := rc.Search(context.Background(), &models.Query{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.attempts)

	var re *RequestError
	assert.True(t, errors.As(err, &re))
}

func TestRetryClient_MaxRetriesExceeded(t *testing.T) {
	transport := &TransportError{Op: "search", Err: errors.New("timeout")}
	inner := &flakyClient{MockClient: NewMockClient(), errs: []error{transport, transport, transport, transport, transport}}
	rc := NewRetryClient(inner, fastRetry())

	_, err := rc.Search(context.Background(), &models.Query{})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Equal(t, 4, inner.attempts)
}

func TestRetryClient_WritesPassThrough(t *testing.T) {
	mock := NewMockClient()
	mock.FailOn["add"] = &TransportError{Op: "add", Err: errors.New("down")}
	rc := NewRetryClient(mock, fastRetry())

	err := rc.AddDocument(context.Background(), "Page", models.NewDocument("Page_1_Draft"))
	assert.True(t, IsTransport(err))
	assert.Equal(t, 1, mock.CallCount("add"))
}
