package permission

import "errors"

// ErrStrategyPanic is reported when a custom Strategy panics.
var ErrStrategyPanic = errors.New("permission strategy panicked")
