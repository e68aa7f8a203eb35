// Package lua wraps gopher-lua for extension code.
//
// Every extension namespace owns one State. A State opens only the base,
// package, table, string, math and coroutine libraries, removes the
// file loading functions and replaces require with a resolver supplied by
// the namespace, so Lua modules come from archives and never from disk.
//
// # Calls and re-entrancy
//
// gopher-lua's LState is not goroutine-safe, so every call into a State
// holds a Lock. All States share one host-wide Lock unless WithLock says
// otherwise. A call chain may cross States (a Lua command in one
// extension fires an event handled by a listener in another) and would
// deadlock if it took the Lock again. To allow it, the context installed
// on the LState records which Locks are held, and Go functions exposed
// to Lua must pass L.Context() along. A call whose context already holds
// the Lock runs without locking.
//
// A context obtained from L.Context() must not be handed to another
// goroutine.
package lua
