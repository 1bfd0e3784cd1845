/*
Package ports defines the driven ports (interfaces) of the weft runtime.

These interfaces decouple the core from the widget toolkit, the UI event loop,
the plugin compiler and persistence, so that the core can run headless in tests
and in the CLI.

# Key Interfaces

  - Renderer: Locates UI targets by id and reads/writes their properties.
  - Dispatcher: Tells whether work already runs on the UI-owning context and posts work onto it.
  - Compiler / Module: Turns plugin source into callable entry points.
  - SnapshotStore: Persists state snapshots between sessions.
  - Locker: Distributed locking around snapshot writes.
*/
package ports
