package llm

import (
	"context"

	apierrors "apivault/internal/errors"
	"apivault/internal/logging"
)

// retryingClient wraps a Client with exponential backoff on transient
// failures.
type retryingClient struct {
	inner  Client
	config apierrors.RetryConfig
	logger logging.Logger
}

// NewRetryingClient decorates inner with the given retry policy.
func NewRetryingClient(inner Client, config apierrors.RetryConfig, logger logging.Logger) Client {
	return &retryingClient{inner: inner, config: config, logger: logging.OrNop(logger)}
}

func (c *retryingClient) Model() string { return c.inner.Model() }

func (c *retryingClient) Generate(ctx context.Context, req Request) (*Result, error) {
	return apierrors.RetryWithResult(ctx, c.config, func(ctx context.Context) (*Result, error) {
		return c.inner.Generate(ctx, req)
	}, c.logger)
}
