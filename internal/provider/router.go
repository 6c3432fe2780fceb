package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// Router selects a provider per request, preferring the configured model's
// provider and otherwise the cheapest one, and wraps every call in a
// circuit breaker so a failing upstream is skipped instead of hammered.
type Router struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
}

func NewRouter(providers []Provider) *Router {
	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, p := range providers {
		settings := gobreaker.Settings{
			Name:        p.Name(),
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		breakers[p.Name()] = gobreaker.NewCircuitBreaker(settings)
	}
	return &Router{
		providers: providers,
		breakers:  breakers,
	}
}

func (r *Router) Route(ctx context.Context, req *Request) (Provider, error) {
	var candidates []Provider
	for _, p := range r.providers {
		cb := r.breakers[p.Name()]
		if cb.State() == gobreaker.StateOpen {
			continue
		}

		if req.Model != "" {
			for _, m := range p.SupportedModels() {
				if m == req.Model {
					candidates = append(candidates, p)
					break
				}
			}
		} else {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		return nil, errors.New("all providers unavailable")
	}

	if req.Model != "" {
		return candidates[0], nil
	}

	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.CostPerInputToken() < best.CostPerInputToken() {
			best = p
		}
	}
	return best, nil
}

func (r *Router) Execute(ctx context.Context, req *Request, p Provider) (*Response, error) {
	cb := r.breakers[p.Name()]
	result, err := cb.Execute(func() (interface{}, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

// Complete routes and executes in one step. When the requested model is not
// offered by any healthy provider, it retries without a model constraint so
// the cheapest healthy provider answers instead of the request failing.
func (r *Router) Complete(ctx context.Context, req *Request) (*Response, error) {
	p, err := r.Route(ctx, req)
	if err != nil && req.Model != "" {
		fallback := *req
		fallback.Model = ""
		p, err = r.Route(ctx, &fallback)
		if err != nil {
			return nil, err
		}
		if models := p.SupportedModels(); len(models) > 0 {
			fallback.Model = models[0]
		}
		return r.Execute(ctx, &fallback, p)
	}
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, req, p)
}
