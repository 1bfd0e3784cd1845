/*
Package observability turns engine lifecycle hooks into metrics and logs.

Metrics registers prometheus collectors and returns domain.Hooks that update
them; LogHooks logs the same events through slog. Combine merges any number of
hook sets into one, so both can be installed on an engine at once.
*/
package observability
