package retry

import (
	"context"
)

// NoRetryStrategy runs the operation exactly once. The right choice for
// periodic sweeps, where a failed pass simply runs again on the next tick.
type NoRetryStrategy struct{}

// NewNoRetryStrategy creates a single-attempt strategy.
func NewNoRetryStrategy() *NoRetryStrategy {
	return &NoRetryStrategy{}
}

// Execute runs the operation once and reports its outcome as-is.
func (s *NoRetryStrategy) Execute(ctx context.Context, operation Operation) error {
	return operation()
}

// Name returns the strategy name.
func (s *NoRetryStrategy) Name() string {
	return "NoRetry"
}
