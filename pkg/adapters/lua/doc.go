// Package lua compiles plugin source written in Lua.
//
// Compiler implements ports.Compiler on top of gopher-lua. Every module runs
// in its own sandboxed state: only the base, table, string and math libraries
// are opened, and loaders that reach the filesystem are removed.
//
// NewPlugin turns a compiled module into a plugin.Plugin. The module sees a
// global "weft" table while it loads:
//
//	weft.get(name)                       -- read a state variable
//	weft.set(name, value)                -- write a state variable
//	weft.log(message)                    -- log through the plugin logger
//	weft.register_function(name, fn)     -- fn(args) returns a string
//	weft.register_command(name, fn)      -- fn(attrs, sender) returns a bool
//
// Optional globals on_load, on_unload and on_event(name, payload) are called
// on the matching lifecycle step. A global table named "plugin" with name,
// version and description fields supplies the plugin metadata.
package lua
