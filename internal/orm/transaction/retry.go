package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/objectserver/internal/orm/database"
)

const (
	// DefaultMaxRetries is the default number of attempts for retryable failures
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 100 * time.Millisecond
)

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// WithRetryConfig executes a transaction with custom retry configuration.
// Each attempt runs in a fresh transaction.
func (m *Manager) WithRetryConfig(ctx context.Context, config *RetryConfig, fn Work) error {
	if config == nil || config.MaxRetries < 1 {
		return m.WithTransaction(ctx, fn)
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before retry %d: %w", attempt, ctx.Err())
		}

		err := m.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return err
		}

		lastErr = err
		backoff := config.BaseBackoff * time.Duration(1<<uint(attempt))
		m.logger.Warn("retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: transaction failed after %d retries: %w", ErrDeadlock, config.MaxRetries, lastErr)
}

// retryableMessages are matched against errors that reach the manager
// without a driver error in their chain, such as errors re-created by hooks
var retryableMessages = []string{
	"40p01",
	"40001",
	"deadlock detected",
	"deadlock found",
	"lock wait timeout exceeded",
	"database is locked",
	"could not serialize access",
}

// IsRetryableError reports whether a transaction failing with err may
// succeed when run again: deadlocks, serialization failures and busy
// SQLite databases
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if database.IsRetryable(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
