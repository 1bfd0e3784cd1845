/*
Package runner drives a loaded engine interactively.

A Runner reads commands from an IOHandler, applies them to the engine and
writes what changed. Two handlers are provided:

  - TextHandler: line commands for a terminal ("inc", "set count 5", "state").
  - JSONHandler: JSON-Lines for programs driving weft over a pipe.

Input is sanitized before it is parsed. When a session id is set the state is
saved after every command that changed it.

# Usage

	r := runner.NewRunner(
		runner.WithSessionID("dev"),
		runner.WithInputHandler(runner.NewJSONHandler(os.Stdin, os.Stdout)),
	)
	if err := r.Run(ctx, engine); err != nil {
		log.Fatal(err)
	}
*/
package runner
