package llm

import (
	"context"
	"sync"
	"time"
)

// rateWindowSpan is the rolling period over which request and token
// ceilings apply.
const rateWindowSpan = time.Minute

// RateWindow enforces per-minute request and token ceilings using two
// rolling time-ordered logs. Acquire never fails on backpressure: a caller
// over either ceiling is delayed until the window has room, then recorded.
// It is safe for concurrent use by parallel requests sharing one provider.
type RateWindow struct {
	mu sync.Mutex

	requestLimit int
	tokenLimit   int

	requests []time.Time
	tokens   []tokenEntry

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type tokenEntry struct {
	at    time.Time
	count int
}

// NewRateWindow creates a rate window with the given per-minute ceilings.
func NewRateWindow(requestsPerMinute, tokensPerMinute int) *RateWindow {
	return &RateWindow{
		requestLimit: requestsPerMinute,
		tokenLimit:   tokensPerMinute,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire blocks until the window has headroom for one more request and
// estimatedTokens more tokens, then records the call. The only error it
// returns is the context's, when the caller is cancelled mid-wait.
func (w *RateWindow) Acquire(ctx context.Context, estimatedTokens int) error {
	for {
		w.mu.Lock()
		now := w.now()
		w.prune(now)

		wait := w.waitNeeded(now, estimatedTokens)
		if wait <= 0 {
			w.requests = append(w.requests, now)
			if estimatedTokens > 0 {
				w.tokens = append(w.tokens, tokenEntry{at: now, count: estimatedTokens})
			}
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()

		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// waitNeeded computes how long the caller must wait before both ceilings
// have room. Zero means the call can proceed now. Caller holds the lock.
func (w *RateWindow) waitNeeded(now time.Time, estimatedTokens int) time.Duration {
	var wait time.Duration

	if len(w.requests) >= w.requestLimit {
		oldest := w.requests[0]
		if d := rateWindowSpan - now.Sub(oldest); d > wait {
			wait = d
		}
	}

	total := 0
	for _, e := range w.tokens {
		total += e.count
	}
	if total+estimatedTokens > w.tokenLimit {
		// Walk the log from the oldest entry until enough tokens would
		// age out to fit this call.
		toFree := total + estimatedTokens - w.tokenLimit
		freed := 0
		for _, e := range w.tokens {
			freed += e.count
			if freed >= toFree {
				if d := rateWindowSpan - now.Sub(e.at); d > wait {
					wait = d
				}
				break
			}
		}
	}

	return wait
}

// prune drops log entries older than the window span. Caller holds the lock.
func (w *RateWindow) prune(now time.Time) {
	cutoff := now.Add(-rateWindowSpan)

	kept := w.requests[:0]
	for _, t := range w.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.requests = kept

	keptTokens := w.tokens[:0]
	for _, e := range w.tokens {
		if e.at.After(cutoff) {
			keptTokens = append(keptTokens, e)
		}
	}
	w.tokens = keptTokens
}
