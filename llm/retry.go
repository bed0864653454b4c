// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig controls same-provider retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the first call.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the backoff per attempt.
	BackoffFactor float64

	// Jitter randomizes the backoff by the given fraction (0.0-1.0).
	Jitter float64

	// RetryIf decides whether an error is worth retrying. Defaults to
	// DefaultRetryable when nil.
	RetryIf func(err error) bool
}

// DefaultRetryConfig returns the standard retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        DefaultRetryable,
	}
}

// DefaultRetryable retries classified transient provider errors and
// timeouts; permanent errors and cancellations abort.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// RetryWithBackoff runs fn up to 1+MaxRetries times with exponential
// backoff between attempts. Context cancellation aborts the wait.
func RetryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryable
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryIf(err) {
			return zero, err
		}
		if attempt >= config.MaxRetries {
			break
		}

		backoff := config.InitialBackoff * time.Duration(pow(config.BackoffFactor, attempt))
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
		if config.Jitter > 0 {
			delta := float64(backoff) * config.Jitter
			backoff = time.Duration(float64(backoff) + (rand.Float64()*2*delta - delta))
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return zero, lastErr
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
