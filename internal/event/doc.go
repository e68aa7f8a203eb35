// Package event provides the priority ordered event bus shared by all
// extensions.
//
// # Event types
//
// Every event reports a *Type. Types form a single-parent hierarchy and a
// type may declare a handler list with WithHandlerList. Listeners are
// stored in the bucket of the nearest declaring type up the chain, which
// lets a listener registered for a parent type observe every subtype:
//
//	base     := event.NewType("extension", nil, event.WithHandlerList())
//	enabled  := event.NewType("extension.enabled", base)
//	disabled := event.NewType("extension.disabled", base)
//
// A listener on base sees both enabled and disabled events. A listener on
// enabled only sees enabled events, even though both share base's bucket.
//
// # Delivery
//
// Fire delivers synchronously in the caller's goroutine, in priority
// order:
//
//	PriorityLowest, PriorityLow, PriorityNormal, PriorityHigh,
//	PriorityHighest, PriorityMonitor
//
// Listeners that run earlier can cancel or mutate the event before later
// ones observe it. PriorityMonitor is meant for observation only; the bus
// does not enforce it. Listeners registered at the same priority run in
// registration order.
//
// A listener is skipped when the event is cancelled unless it set
// IgnoreCancelled, and when the Fire filter rejects its owner unless it
// set IgnoreFilter. Errors and panics from one listener are logged with
// the owner's identity and never stop delivery to the rest.
//
// # Concurrency
//
// Registration and dispatch may happen from any goroutine. Buckets are
// copied on write, so Fire iterates a snapshot and a listener can
// register or unregister listeners while it runs.
package event
