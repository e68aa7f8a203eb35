// Package api defines the contract between the host and extensions.
//
// Native extensions implement Extension and are registered as a Factory.
// If they also implement Binder they receive their Runtime before OnLoad.
// Embedding Base provides no-op hooks and a stored Runtime:
//
//	type Echo struct{ api.Base }
//
//	func (e *Echo) OnEnable() error {
//	    e.Runtime().RegisterCommand(&command.Command{Name: "echo", Run: e.echo})
//	    return nil
//	}
//
// Lua extensions reach the same Runtime through require("cutlet"), which
// LuaModule implements:
//
//	local cutlet = require("cutlet")
//	local Bot = {}
//	function Bot:onEnable()
//	    cutlet.command{ name = "echo", run = function(sender, alias, args)
//	        sender.send(table.concat(args, " "))
//	    end }
//	end
//	return Bot
package api
