package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/pkg/logger"
	"github.com/vanilka-ai/bento-assistant/pkg/metrics"
)

// RetryPolicy bounds how a completion is retried. Only transient
// failures (ErrUnavailable, ErrTimeout) are retried; ErrRefused is
// always terminal.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialWait is the first backoff interval; subsequent waits grow
	// exponentially.
	InitialWait time.Duration
	// Timeout is the hard deadline applied to each individual attempt.
	Timeout time.Duration
}

type retryClient struct {
	inner  Client
	policy RetryPolicy
	logger *logger.Logger
}

// WithRetry wraps a client with the bounded retry policy.
func WithRetry(inner Client, policy RetryPolicy, log *logger.Logger) Client {
	return &retryClient{
		inner:  inner,
		policy: policy,
		logger: log,
	}
}

func (c *retryClient) Name() string {
	return c.inner.Name()
}

func (c *retryClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var resp *CompletionResponse

	attempt := func() error {
		attemptCtx := ctx
		if c.policy.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
			defer cancel()
		}

		r, err := c.inner.Complete(attemptCtx, req)
		if err != nil {
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			// Give up early if the parent context itself is gone.
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.policy.InitialWait
	bo.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		metrics.CompletionRetries.Inc()
		c.logger.Warn("completion attempt failed, retrying",
			zap.Error(err),
			zap.Duration("wait", wait),
		)
	}

	err := backoff.RetryNotify(
		attempt,
		backoff.WithMaxRetries(bo, uint64(c.policy.MaxRetries)),
		notify,
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}

	return resp, nil
}
