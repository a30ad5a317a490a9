package railprovider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle paces calls into rail providers with a token bucket per provider
// name, so one provider's configured pacing never starves another's —
// adapted from the auth package's per-IP rate limiter, keyed by provider
// name instead of client IP. Unlike that limiter there is no background
// cleanup goroutine: the provider set is closed and small (one entry per
// configured rail), never unbounded like request-time client IPs.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewThrottle creates a throttle allowing rps requests per second per
// provider name, with burst as the token bucket capacity.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(rps),
		b:        burst,
	}
}

func (t *Throttle) limiterFor(name string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[name]
	if !ok {
		l = rate.NewLimiter(t.r, t.b)
		t.limiters[name] = l
	}
	return l
}

// Wait blocks until name's bucket has a token, or ctx is canceled first.
func (t *Throttle) Wait(ctx context.Context, name string) error {
	return t.limiterFor(name).Wait(ctx)
}

// Throttled wraps a Provider so every call is paced through shared limiter
// state, keyed by the wrapped provider's Name().
type Throttled struct {
	Provider
	throttle *Throttle
}

// NewThrottled wraps p so each of its calls first waits on throttle.
func NewThrottled(p Provider, throttle *Throttle) *Throttled {
	return &Throttled{Provider: p, throttle: throttle}
}

func (p *Throttled) Submit(ctx context.Context, payload InstructionPayload) (SubmitResult, error) {
	if err := p.throttle.Wait(ctx, p.Name()); err != nil {
		return SubmitResult{}, err
	}
	return p.Provider.Submit(ctx, payload)
}

func (p *Throttled) GetStatus(ctx context.Context, providerRequestID string) (StatusResult, error) {
	if err := p.throttle.Wait(ctx, p.Name()); err != nil {
		return StatusResult{}, err
	}
	return p.Provider.GetStatus(ctx, providerRequestID)
}

func (p *Throttled) Cancel(ctx context.Context, providerRequestID string) (CancelResult, error) {
	if err := p.throttle.Wait(ctx, p.Name()); err != nil {
		return CancelResult{}, err
	}
	return p.Provider.Cancel(ctx, providerRequestID)
}

func (p *Throttled) Reconcile(ctx context.Context, date time.Time) ([]SettlementRecord, error) {
	if err := p.throttle.Wait(ctx, p.Name()); err != nil {
		return nil, err
	}
	return p.Provider.Reconcile(ctx, date)
}
