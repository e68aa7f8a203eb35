package permission

import (
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

// Strategy replaces the default matching algorithm.
// Returning an error (or panicking) makes the engine fall back to Default
// for that single call.
type Strategy func(base, check string) (bool, error)

// Engine evaluates permissions, optionally through an injected Strategy.
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	strategy Strategy
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy installs a custom matching strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		e.strategy = s
	}
}

// WithLogger sets the logger used to report strategy failures.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine. Without options it uses Default.
func New(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategy != nil {
		e.logger.Warn("custom permission strategy installed")
	}
	return e
}

// Allows reports whether the granted base permission allows check.
func (e *Engine) Allows(base, check string) bool {
	if e == nil || e.strategy == nil {
		return Default(base, check)
	}
	ok, err := e.callStrategy(base, check)
	if err != nil {
		e.logger.Error("permission strategy failed, using default algorithm",
			zap.String("base", base),
			zap.String("check", check),
			zap.Error(err))
		return Default(base, check)
	}
	return ok
}

// AllowsNullable is Allows for optional values. A nil value on either side
// never allows anything.
func (e *Engine) AllowsNullable(base, check *string) bool {
	if base == nil || check == nil {
		return false
	}
	return e.Allows(*base, *check)
}

// Any reports whether any of the grants allows check.
// An empty check is allowed even with no grants.
func (e *Engine) Any(grants []string, check string) bool {
	if check == "" {
		return true
	}
	for _, g := range grants {
		if e.Allows(g, check) {
			return true
		}
	}
	return false
}

func (e *Engine) callStrategy(base, check string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrStrategyPanic, r, debug.Stack())
		}
	}()
	return e.strategy(base, check)
}

// Default is the built-in matching algorithm.
func Default(base, check string) bool {
	if check == "" {
		return true
	}
	if strings.EqualFold(base, check) {
		return true
	}

	baseSegs := segments(strings.TrimLeft(base, "-"))
	checkSegs := segments(strings.TrimLeft(check, "-"))

	n := min(len(baseSegs), len(checkSegs))
	for i := 0; i < n; i++ {
		b, c := baseSegs[i], checkSegs[i]
		if b == Wildcard || c == Wildcard || strings.EqualFold(b, c) {
			continue
		}
		return false
	}

	if len(baseSegs) == len(checkSegs) {
		return true
	}
	// Only a trailing wildcard in the shorter base reaches deeper.
	return len(baseSegs) < len(checkSegs) && baseSegs[len(baseSegs)-1] == Wildcard
}

// Wildcard matches any single segment.
const Wildcard = "*"

// segments splits on '.' and drops trailing empty segments, so "a.b." and
// "a.b" compare alike.
func segments(p string) []string {
	segs := strings.Split(p, ".")
	for len(segs) > 1 && segs[len(segs)-1] == "" {
		segs = segs[:len(segs)-1]
	}
	return segs
}
