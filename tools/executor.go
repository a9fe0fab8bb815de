// Tool Executor with Retry Logic.
//
// Information Hiding:
// - Retry strategy implementation hidden (failsafe-go retry policy)
// - Backoff algorithm hidden
// - Error classification logic hidden

package tools

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Config holds tool execution configuration.
// The zero value is safe: see DefaultConfig for the defaults it maps to.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	// Negative disables retries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// DefaultConfig returns the default tool configuration: three attempts,
// exponential backoff from 100ms capped at 5s, 30s per attempt.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Timeout:    30 * time.Second,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	switch {
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	case c.MaxRetries == 0:
		c.MaxRetries = def.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// Executor runs adapter calls with bounded retries.
type Executor struct {
	config Config
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config Config) *Executor {
	return &Executor{config: config.normalized()}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultConfig())
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.config
}

// execute runs fn until it succeeds, fails permanently, the context ends,
// or retries run out. It returns the number of attempts made.
func execute[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, int, error) {
	if e == nil {
		e = NewDefaultExecutor()
	}
	cfg := e.config

	policy := retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ T, err error) bool {
			return shouldRetry(ctx, err)
		}).
		Build()

	attempts := 0
	result, err := failsafe.With[T](policy).WithContext(ctx).Get(func() (T, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return fn(attemptCtx)
	})
	return result, attempts, err
}

// shouldRetry determines if an error is retryable.
func shouldRetry(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	// Caller gave up; a per-attempt timeout is still worth retrying.
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, ErrPermanent)
}
