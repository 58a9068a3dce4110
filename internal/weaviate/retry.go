package weaviate

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kilupskalvis/indexsync/internal/models"
)

// RetryConfig configures retry behavior for transient read errors.
type RetryConfig struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient retries reads that failed in transport. Writes pass straight
// through: the sync engine decides what a failed write means.
type RetryClient struct {
	ClientInterface
	config *RetryConfig
}

// NewRetryClient wraps inner with read retries.
func NewRetryClient(inner ClientInterface, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryClient{ClientInterface: inner, config: cfg}
}

func (rc *RetryClient) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.config.InitialBackoff
	b.MaxInterval = rc.config.MaxBackoff
	b.RandomizationFactor = rc.config.JitterFraction
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, rc.config.MaxRetries), ctx)
}

// retry runs fn until it succeeds, fails with a non-transport error, or
// the retry budget is spent.
func (rc *RetryClient) retry(ctx context.Context, fn func() error) error {
	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsTransport(err) {
			return backoff.Permanent(err)
		}
		return err
	}, rc.policy(ctx))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// IndexExists retries transient failures.
func (rc *RetryClient) IndexExists(ctx context.Context) (ok bool, err error) {
	err = rc.retry(ctx, func() error {
		ok, err = rc.ClientInterface.IndexExists(ctx)
		return err
	})
	return
}

// Search retries transient failures.
func (rc *RetryClient) Search(ctx context.Context, query *models.Query) (rs *models.RawResultSet, err error) {
	err = rc.retry(ctx, func() error {
		rs, err = rc.ClientInterface.Search(ctx, query)
		return err
	})
	return
}

var _ ClientInterface = (*RetryClient)(nil)
