// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/stacklok/flowhive/pkg/engine"
)

// RateLimited decorates a Provider with a client-side request limiter so
// that retry loops and deep workflow nesting cannot hammer the API.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p, allowing rps requests per second with the given
// burst.
func NewRateLimited(p Provider, rps float64, burst int) *RateLimited {
	return &RateLimited{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

var _ Provider = (*RateLimited)(nil)

// Name implements Provider.
func (r *RateLimited) Name() string { return r.inner.Name() }

// Generate implements Provider, blocking until the limiter grants a slot.
func (r *RateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", engine.ErrProvider, err)
	}
	return r.inner.Generate(ctx, req)
}
