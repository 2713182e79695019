package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC codes for requests that fail the same way on every attempt.
const (
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
)

// retryable reports whether another attempt could succeed. Cancellation and malformed
// requests are final; rate limits, timeouts and server errors are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case rpcInvalidRequest, rpcMethodNotFound, rpcInvalidParams:
			return false
		}
	}
	return true
}

// withRetry calls fn until it succeeds, fails permanently or runs out of retries. The delay
// doubles after each failure and is capped at maxDelay when maxDelay is positive.
func withRetry(ctx context.Context, maxRetries int, baseDelay, maxDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
	}
}
