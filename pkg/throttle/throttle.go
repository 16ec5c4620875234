// Package throttle paces calls to a remote service with a rate limit that
// adapts to the responses it gets back: it backs off when the service
// reports overload and creeps back up after a quiet period.
//
// Unlike a retry helper it never repeats a call. Callers Wait before each
// request and report the outcome with Observe.
//
//	lim := throttle.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	if err := lim.Wait(ctx); err != nil {
//	    return err
//	}
//	err := doRequest()
//	lim.Observe(err)
package throttle

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCalmPeriod is how long after the last overload signal the limit
// starts climbing again.
const DefaultCalmPeriod = 10 * time.Second

// AdaptiveLimiter is safe for concurrent use.
type AdaptiveLimiter struct {
	mu         sync.RWMutex
	limiter    *rate.Limiter
	minLimit   rate.Limit
	maxLimit   rate.Limit
	stepUp     rate.Limit
	stepDown   float64
	calmPeriod time.Duration
	lastError  time.Time
	now        func() time.Time
}

// NewAdaptiveLimiter creates a limiter.
//
//   - initial: starting requests per second
//   - min, max: bounds for the adapted rate
//   - stepUp: increment applied on success once calm
//   - stepDown: multiplier applied on overload (0.5 halves the rate)
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if min <= 0 {
		min = 1
	}
	if max < min {
		max = min
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &AdaptiveLimiter{
		limiter:    rate.NewLimiter(initial, burstFor(initial)),
		minLimit:   min,
		maxLimit:   max,
		stepUp:     stepUp,
		stepDown:   stepDown,
		calmPeriod: DefaultCalmPeriod,
		now:        time.Now,
	}
}

// Wait blocks until a request may be made or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.mu.RLock()
	lim := a.limiter
	a.mu.RUnlock()
	return lim.Wait(ctx)
}

// Observe adjusts the rate after a request finished with err.
func (a *AdaptiveLimiter) Observe(err error) {
	switch {
	case err == nil:
		a.Success()
	case IsOverload(err):
		a.RateLimited()
	}
}

// Success raises the rate, unless an overload was seen recently.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.now().Sub(a.lastError) > a.calmPeriod {
		a.adjustLimit(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited lowers the rate after the service reported overload.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = a.now()
	a.adjustLimit(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

// MaxLimit returns the configured maximum rate.
func (a *AdaptiveLimiter) MaxLimit() rate.Limit { return a.maxLimit }

// MinLimit returns the configured minimum rate.
func (a *AdaptiveLimiter) MinLimit() rate.Limit { return a.minLimit }

func (a *AdaptiveLimiter) adjustLimit(newLimit rate.Limit) {
	if newLimit > a.maxLimit {
		newLimit = a.maxLimit
	} else if newLimit < a.minLimit {
		newLimit = a.minLimit
	}
	if newLimit != a.limiter.Limit() {
		a.limiter.SetLimit(newLimit)
		a.limiter.SetBurst(burstFor(newLimit))
	}
}

func burstFor(l rate.Limit) int {
	if int(l) < 1 {
		return 1
	}
	return int(l)
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	error
	StatusCode() int
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// IsOverload reports 429 and 5xx responses.
func IsOverload(err error) bool {
	code := StatusOf(err)
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}
