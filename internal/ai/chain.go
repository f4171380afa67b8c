package ai

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
)

// Chain tries providers in order; the first non-empty reply wins
type Chain struct {
	providers []Provider
	timeout   time.Duration
}

// NewChain creates a chain. timeout bounds each provider attempt; zero
// means the caller's context alone applies.
func NewChain(timeout time.Duration, providers ...Provider) *Chain {
	return &Chain{providers: providers, timeout: timeout}
}

// Len returns the number of configured providers
func (c *Chain) Len() int {
	return len(c.providers)
}

// Name lists the providers in order
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Generate implements Provider
func (c *Chain) Generate(ctx context.Context, req Request) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrNoProviders
	}

	chainErr := &ChainError{}
	for _, p := range c.providers {
		reply, err := c.attempt(ctx, p, req)
		if err == nil {
			return reply, nil
		}
		logger.Warn("AI provider failed, trying next",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		chainErr.Failures = append(chainErr.Failures, ProviderError{Provider: p.Name(), Err: err})

		if ctx.Err() != nil {
			break
		}
	}
	return "", chainErr
}

func (c *Chain) attempt(ctx context.Context, p Provider, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reply, err := p.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyResponse
	}
	return reply, nil
}
