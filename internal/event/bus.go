package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bus dispatches events to listeners registered by extensions.
type Bus struct {
	registry *registry
	exec     *executor
	logger   *zap.Logger

	typesMu sync.RWMutex
	types   map[string]*Type

	eventsFired      atomic.Uint64
	handlersExecuted atomic.Uint64
	handlerErrors    atomic.Uint64
	handlerPanics    atomic.Uint64
	totalDeliveryNs  atomic.Int64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithPanicHandler sets a hook invoked after a listener panic is recovered.
func WithPanicHandler(h PanicHandler) Option {
	return func(b *Bus) {
		b.exec.panicHandler = h
	}
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		registry: newRegistry(),
		exec:     &executor{},
		logger:   zap.NewNop(),
		types:    make(map[string]*Type),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Declare makes types resolvable by name through Lookup.
// Declaring the same *Type twice is a no-op.
func (b *Bus) Declare(types ...*Type) error {
	b.typesMu.Lock()
	defer b.typesMu.Unlock()

	var errs []error
	for _, t := range types {
		if existing, ok := b.types[t.Name()]; ok && existing != t {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateType, t.Name()))
			continue
		}
		b.types[t.Name()] = t
	}
	return errors.Join(errs...)
}

// Lookup returns the declared type with the given name.
func (b *Bus) Lookup(name string) (*Type, error) {
	b.typesMu.RLock()
	defer b.typesMu.RUnlock()

	t, ok := b.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// Register adds listeners for owner.
//
// The whole call is rejected without mutation when owner is not enabled.
// Otherwise each listener is validated on its own: invalid listeners are
// logged and skipped, the others are registered. The returned error joins
// the reasons for every skipped listener.
func (b *Bus) Register(owner Owner, listeners ...Listener) ([]Registration, error) {
	if owner == nil {
		return nil, ErrNilOwner
	}
	ownerID := owner.ID()
	if !owner.Enabled() {
		b.logger.Warn("listener registration from disabled owner ignored",
			zap.String("owner", ownerID))
		return nil, fmt.Errorf("%s: %w", ownerID, ErrOwnerNotEnabled)
	}

	byDecl := make(map[*Type][]*registration)
	var order []*Type
	var accepted []Registration
	var errs []error

	for _, l := range listeners {
		if err := l.validate(); err != nil {
			b.logger.Error("listener skipped", zap.String("owner", ownerID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		decl := l.Type.declaring()
		if decl == nil {
			err := fmt.Errorf("%w: %s", ErrNoHandlerList, l.Type.Name())
			b.logger.Error("listener skipped", zap.String("owner", ownerID), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		reg := &registration{
			id:       uuid.NewString(),
			owner:    owner,
			ownerID:  ownerID,
			listener: l,
		}
		if _, seen := byDecl[decl]; !seen {
			order = append(order, decl)
		}
		byDecl[decl] = append(byDecl[decl], reg)
		accepted = append(accepted, Registration{
			ID:       reg.id,
			OwnerID:  ownerID,
			Type:     l.Type,
			Priority: l.Priority,
		})
	}

	for _, decl := range order {
		b.registry.add(decl, byDecl[decl])
	}
	return accepted, errors.Join(errs...)
}

// Unregister removes a single listener. It reports whether it existed.
func (b *Bus) Unregister(id string) bool {
	return b.registry.remove(id)
}

// UnregisterAll removes every listener registered by owner and returns
// how many were removed.
func (b *Bus) UnregisterAll(owner Owner) int {
	if owner == nil {
		return 0
	}
	return b.registry.removeOwner(owner.ID())
}

// Listeners returns how many listeners would receive an event of type t.
func (b *Bus) Listeners(t *Type) int {
	return b.registry.countFor(t)
}

// Fire delivers e to its listeners in priority order. filter may be nil.
// Listener failures are logged and collected in the result; they never
// stop delivery.
func (b *Bus) Fire(ctx context.Context, e Event, filter Filter) FireResult {
	var res FireResult
	if e == nil || e.EventType() == nil {
		return res
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b.eventsFired.Add(1)

	typ := e.EventType()
	decl := typ.declaring()
	if decl == nil {
		return res
	}
	cancellable, _ := e.(Cancellable)

	for _, reg := range b.registry.snapshot(decl) {
		l := reg.listener
		if !typ.Is(l.Type) {
			continue
		}
		if cancellable != nil && cancellable.Cancelled() && !l.IgnoreCancelled {
			res.Skipped++
			continue
		}
		if filter != nil && !l.IgnoreFilter && !filter(reg.owner) {
			res.Skipped++
			continue
		}

		out := b.exec.execute(ctx, e, l.Handler)
		if out.Skipped {
			res.Skipped++
			continue
		}
		res.Delivered++
		b.handlersExecuted.Add(1)
		b.totalDeliveryNs.Add(int64(out.Duration))

		if out.Err != nil {
			b.handlerErrors.Add(1)
			if out.Panicked {
				b.handlerPanics.Add(1)
			}
			err := &DispatchError{OwnerID: reg.ownerID, Type: typ.Name(), Err: out.Err}
			res.Errors = append(res.Errors, err)
			fields := []zap.Field{
				zap.String("owner", reg.ownerID),
				zap.String("event", typ.Name()),
				zap.Stringer("priority", l.Priority),
				zap.Error(out.Err),
			}
			var pe *PanicError
			if errors.As(out.Err, &pe) {
				fields = append(fields, zap.ByteString("stack", pe.Stack))
			}
			b.logger.Error("event listener failed", fields...)
		}
	}

	if cancellable != nil {
		res.Cancelled = cancellable.Cancelled()
	}
	return res
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	executed := b.handlersExecuted.Load()
	var avg int64
	if executed > 0 {
		avg = b.totalDeliveryNs.Load() / int64(executed)
	}
	return Stats{
		EventsFired:       b.eventsFired.Load(),
		HandlersExecuted:  executed,
		HandlerErrors:     b.handlerErrors.Load(),
		HandlerPanics:     b.handlerPanics.Load(),
		ActiveListeners:   b.registry.count(),
		AvgDeliveryTimeNs: avg,
	}
}
