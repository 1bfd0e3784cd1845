/*
Package domain contains the core domain models shared by every weft subsystem.

It is kept free of I/O and locking so that the state store, the binding engine,
the interpreter and the plugin host can all depend on it without depending on
each other.

# Key Entities

  - HandlerNode: One instruction of a handler tree (kind, attributes, ordered children).
  - Binding: A live link from a state key to a property of a UI target.
  - Hooks: Lifecycle callbacks used for logging, metrics and devtools.
*/
package domain
