package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrStoreUnavailable is the only rate-limit-path condition surfaced as an
// error. Being over quota is a normal allowed:false result, not an error.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Store is the shared counter store consulted on every check. Increment must
// atomically bump the counter for key, attach the window expiry on the first
// increment of a fresh window without ever extending an existing one, and
// report the post-increment count together with the window's reset time.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Options tunes evaluator behavior that must be chosen deliberately.
type Options struct {
	// FailOpen admits requests when the store is unreachable. The default is
	// fail-closed: a store outage denies requests rather than silently
	// masking itself.
	FailOpen bool
	// CheckTimeout bounds each round trip to the store.
	CheckTimeout time.Duration
}

// Evaluator turns store counts into admission decisions.
type Evaluator struct {
	store    Store
	rules    Rules
	failOpen bool
	timeout  time.Duration
	logger   *zap.Logger
}

func NewEvaluator(store Store, rules Rules, opts Options, logger *zap.Logger) (*Evaluator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("at least one window rule is required")
	}
	for window, rule := range rules {
		if rule.Limit <= 0 || rule.Duration <= 0 {
			return nil, fmt.Errorf("window %s must have positive limit and duration", window)
		}
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Evaluator{
		store:    store,
		rules:    rules,
		failOpen: opts.FailOpen,
		timeout:  opts.CheckTimeout,
		logger:   logger,
	}, nil
}

// Check atomically counts this request against (identity, window) and
// decides admission. The increment-and-compare is atomic with respect to
// concurrent callers sharing the same store: limit+k simultaneous requests
// yield exactly limit allowed results.
func (e *Evaluator) Check(ctx context.Context, identity string, window Window) (Result, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Result{}, fmt.Errorf("identity is required")
	}
	rule, ok := e.rules[window]
	if !ok {
		return Result{}, fmt.Errorf("unknown rate limit window: %s", window)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	count, resetAt, err := e.store.Increment(ctx, fmt.Sprintf("%s:%s", identity, window), rule.Duration)
	if err != nil {
		e.logger.Error("rate limit store check failed",
			zap.String("identity", identity),
			zap.String("window", string(window)),
			zap.Bool("fail_open", e.failOpen),
			zap.Error(err))
		if e.failOpen {
			return Result{
				Allowed:   true,
				Remaining: rule.Limit,
				ResetAt:   time.Now().Add(rule.Duration),
				Limit:     rule.Limit,
				Window:    window,
			}, nil
		}
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	remaining := rule.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(rule.Limit),
		Remaining: remaining,
		ResetAt:   resetAt,
		Limit:     rule.Limit,
		Window:    window,
	}, nil
}

// CheckAll evaluates several window tiers for one identity concurrently and
// returns the strictest result: a denial from any tier wins, then the result
// with the fewest remaining slots. Every tier is counted even when another
// tier denies, matching how independent fixed windows accrue.
func (e *Evaluator) CheckAll(ctx context.Context, identity string, windows ...Window) (Result, error) {
	if len(windows) == 0 {
		return Result{}, fmt.Errorf("at least one window is required")
	}
	if len(windows) == 1 {
		return e.Check(ctx, identity, windows[0])
	}

	results := make([]Result, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	for i, window := range windows {
		i, window := i, window
		g.Go(func() error {
			result, err := e.Check(gctx, identity, window)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	strictest := results[0]
	for _, result := range results[1:] {
		if strictest.Allowed != result.Allowed {
			if !result.Allowed {
				strictest = result
			}
			continue
		}
		if result.Remaining < strictest.Remaining {
			strictest = result
		}
	}
	return strictest, nil
}
