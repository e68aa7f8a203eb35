// Package namespace implements per-extension symbol resolution.
//
// Each extension archive gets a Namespace. A namespace exports the Lua
// modules it contains: "echo/util.lua" is exported as "echo.util" and
// "echo/init.lua" also as "echo". Resolve looks a symbol up in this
// fixed order and the first hit wins:
//
//  1. the namespace's own archive
//  2. its declared imports (hard then soft dependencies, in declaration
//     order) that are open in the same registry
//  3. every other namespace of the same registry, in the order they were
//     opened
//  4. the parent registry's namespaces in opening order (bots resolve
//     from modules, modules have no parent)
//  5. native factories registered as builtins with the host
//
// When two namespaces export the same symbol the earlier position in this
// order decides, so resolution is deterministic for a given load order.
//
// Isolation only prevents name collisions. Lua sources found in another
// namespace are compiled into the requesting namespace's own Lua state
// and values are never shared between states.
package namespace
