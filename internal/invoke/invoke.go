// Package invoke defines the boundary to the external reasoning service.
// The service itself is an opaque collaborator; the loop only needs a way
// to call it and a way to tell overload apart from real failures.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Payload is the opaque request handed to the reasoning service
type Payload struct {
	TaskID      string
	WorkspaceID string
	Prompt      string
}

// Result is the opaque response from the reasoning service
type Result struct {
	TaskID   string
	Output   string
	Duration time.Duration
}

// Client calls the external reasoning service. Implementations must return
// a *RateLimitError when the provider signals overload, so the caller can
// route it to the rate limiter instead of failing the task.
type Client interface {
	Invoke(ctx context.Context, provider string, payload Payload) (*Result, error)
}

// RateLimitError signals provider overload. It is recovered locally via the
// rate limiter's cooldown and never counts as a task failure by itself.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s rate limited", e.Provider)
}

// IsRateLimit reports whether err is an overload signal
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
