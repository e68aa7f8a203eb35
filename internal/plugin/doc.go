// Package plugin manages the lifecycle of cutlet extensions.
//
// There are two kinds of extension: modules provide host level facilities
// and bots provide messenger facing behavior. Each kind has its own
// Manager and directory of archives. The bot manager has the module
// manager as parent, so bots can require modules and resolve symbols from
// them, never the reverse.
//
// # Archives
//
// An archive is a zip file (".zip" or ".jar") holding exactly one
// descriptor, module.yml or bot.yml:
//
//	name: echo
//	version: 1.0.0
//	main: echo.main
//	authors: [ada]
//	depend: [storage]
//	softdepend: [metrics]
//	modules: [storage]   # bots only
//
// main names a Lua module in the archive ("echo.main" is echo/main.lua)
// or a native factory registered with WithBuiltins.
//
// # Lifecycle
//
// The host runs the phases in this order:
//
//	descs, err := m.Discover(ctx)    // parse descriptors
//	results := m.ResolveAndLoad(ctx, descs)
//	err = m.EnableAll(ctx)           // soft dependencies first
//	...
//	m.DisableAll(ctx)                // reverse load order
//	m.Close()
//
// A Host moves Discovered -> Loaded -> Enabled -> Disabled. Any failure
// moves it to Failed. Disabled and Failed are terminal for the run.
// Extensions register commands, listeners and timers from their enable
// hook; everything they registered is revoked when they are disabled or
// fail to enable.
//
// # Error Handling
//
// Failures are contained to the extension and its dependents. They are
// typed: DiscoveryError, ConflictError, ResolutionError,
// InstantiationError and ActivationError, and panics from extension code
// match ErrPanic.
package plugin
