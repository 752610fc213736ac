package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout executes a transaction with a timeout.
// If the transaction doesn't complete within the duration, it is rolled back.
func (m *Manager) WithTimeout(ctx context.Context, timeout time.Duration, fn Work) error {
	return m.WithTimeoutRetry(ctx, timeout, nil, fn)
}

// WithTimeoutRetry executes a transaction with timeout and automatic retry.
// A zero timeout disables the deadline.
func (m *Manager) WithTimeoutRetry(ctx context.Context, timeout time.Duration, config *RetryConfig, fn Work) error {
	if timeout <= 0 {
		return m.WithRetryConfig(ctx, config, fn)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.WithRetryConfig(timeoutCtx, config, fn)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: transaction exceeded %v: %w", ErrTransactionTimeout, timeout, err)
		}
		return err
	}

	return nil
}
