package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// pacingBurst is the default burst size used when pacing is derived from a
// per-minute ceiling.
const pacingBurst = 5

// perSecondLimit converts a per-minute request ceiling into a sustained
// per-second pacing rate.
func perSecondLimit(requestsPerMinute int) rate.Limit {
	return rate.Limit(float64(requestsPerMinute) / 60)
}

// pacedLLM smooths the instantaneous request rate with a token bucket.
// This complements the per-minute RateWindow: the window enforces the
// provider's published ceilings while the bucket prevents bursts from
// landing on the provider all at once.
type pacedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// PacingMiddleware creates middleware that paces requests using a token
// bucket. The limit parameter sets requests per second, while burst allows
// temporary spikes above the sustained rate.
func PacingMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreLLM) CoreLLM {
		return &pacedLLM{
			next:    next,
			limiter: limiter,
		}
	}
}

// DoRequest waits for pacing permission before forwarding the request.
// This blocks the calling goroutine until a token is available.
func (r *pacedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("pacing: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (r *pacedLLM) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *pacedLLM) SetModel(m string) { r.next.SetModel(m) }
