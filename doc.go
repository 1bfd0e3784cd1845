/*
Package weft is the reactive runtime core of a declarative application engine.

An application is described in markup: state variables, controls, bindings from
variables to control properties, plugins, and handlers written as trees of
instruction nodes. The Engine executes handlers against a shared state store,
pushes every state change to the bound control properties, and lets plugins add
commands, interpolation functions and lifecycle hooks.

# Concept

State, bindings, cache, registries and plugins are independent stores, each with
its own lock. A handler runs synchronously on the caller's goroutine; callers may
execute handlers concurrently. Binding writes are marshalled onto the UI-owning
context given by WithDispatcher, and run inline for headless hosts.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/weft"
	)

	func main() {
		ctx := context.Background()
		eng := weft.New()
		defer eng.Close(ctx)

		if err := eng.LoadFile(ctx, "app.yaml"); err != nil {
			log.Fatal(err)
		}

		// UI callbacks and timers call handlers by name.
		eng.ExecuteHandlerByName(ctx, "increment")
		fmt.Println(eng.StateSnapshot())
	}

# Handlers

Handlers are trees of nodes. Built-in kinds cover variable arithmetic, For,
While, ForEach, If/Else, Break and Continue, property access, bindings, cache
access, logging, plugin events and calls to other handlers. Any other kind is
offered to the command registry by its lower-cased name. A failing node is
logged and reported through hooks; its siblings still run.
*/
package weft
