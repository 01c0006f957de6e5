package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/p2p/pkg/types"
)

// BreakerConfig holds the circuit breaker settings of a GuardedQuerier.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the circuit.
	// Default: 5
	MaxFailures uint32

	// Timeout is how long the circuit stays open before probing again.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxRequests is the number of probe requests allowed while
	// half-open.
	// Default: 1
	HalfOpenMaxRequests uint32
}

func (c *BreakerConfig) normalize() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests == 0 {
		c.HalfOpenMaxRequests = 1
	}
}

// GuardedQuerier wraps a Querier with a circuit breaker so a failing database
// is not hammered by every incoming request. While the circuit is open,
// queries fail fast with ErrUnavailable.
type GuardedQuerier struct {
	next    Querier
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedQuerier wraps next. logger may be nil.
func NewGuardedQuerier(next Querier, cfg BreakerConfig, logger *slog.Logger) *GuardedQuerier {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "host-query",
		MaxRequests: cfg.HalfOpenMaxRequests,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Bad input and cancelled requests say nothing about backend health.
			return err == nil ||
				errors.Is(err, ErrInvalidInput) ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &GuardedQuerier{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// QueryItems implements ItemQuerier.
func (g *GuardedQuerier) QueryItems(ctx context.Context, qv types.QueryVars) (*ItemQuery, error) {
	res, err := g.execute(func() (interface{}, error) {
		return g.next.QueryItems(ctx, qv)
	})
	if err != nil {
		return nil, err
	}
	return res.(*ItemQuery), nil
}

// QueryUsers implements UserQuerier.
func (g *GuardedQuerier) QueryUsers(ctx context.Context, qv types.QueryVars) (*UserQuery, error) {
	res, err := g.execute(func() (interface{}, error) {
		return g.next.QueryUsers(ctx, qv)
	})
	if err != nil {
		return nil, err
	}
	return res.(*UserQuery), nil
}

// State returns "closed", "open" or "half-open".
func (g *GuardedQuerier) State() string {
	return g.breaker.State().String()
}

func (g *GuardedQuerier) execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := g.breaker.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return res, nil
}
