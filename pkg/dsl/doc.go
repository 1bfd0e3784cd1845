/*
Package dsl builds weft documents in Go instead of YAML.

The fluent builders produce the same *markup.Document that markup.Parse
returns, so a built document loads like any other:

	b := dsl.New("counter")
	b.Var("count", 0)
	b.Control("label", "Label").Prop("Text", "{Binding count, Format=Count: {0}}")

	b.Handler("increment").
		Increment("count").
		If("count >= 10", func(then *dsl.Body) {
			then.Set("count", 0)
		}, nil)

	doc, err := b.Build()
	if err != nil {
		return err
	}
	return engine.Load(ctx, doc)

Build validates the document and returns the *markup.ValidationError that
Validate would report for the equivalent YAML.
*/
package dsl
