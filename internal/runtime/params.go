package runtime

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Operation parameters. Field names match attribute names case-insensitively;
// every value stays a raw string until the operation resolves it.

type varParams struct {
	Variable string `mapstructure:"variable"`
	Value    string `mapstructure:"value"`
}

type forParams struct {
	Variable string `mapstructure:"variable"`
	Start    string `mapstructure:"start"`
	End      string `mapstructure:"end"`
	Step     string `mapstructure:"step"`
	Range    string `mapstructure:"range"`
}

type whileParams struct {
	Condition     string `mapstructure:"condition"`
	MaxIterations string `mapstructure:"maxiterations"`
}

type forEachParams struct {
	Variable string `mapstructure:"variable"`
	In       string `mapstructure:"in"`
	Index    string `mapstructure:"index"`
}

type ifParams struct {
	Condition string `mapstructure:"condition"`
}

type propertyParams struct {
	Target   string `mapstructure:"target"`
	Property string `mapstructure:"property"`
	Value    string `mapstructure:"value"`
	Variable string `mapstructure:"variable"`
}

type bindParams struct {
	Variable string `mapstructure:"variable"`
	Key      string `mapstructure:"key"`
	Target   string `mapstructure:"target"`
	Property string `mapstructure:"property"`
	Format   string `mapstructure:"format"`
}

type callParams struct {
	Handler string `mapstructure:"handler"`
}

type logParams struct {
	Message string `mapstructure:"message"`
	Level   string `mapstructure:"level"`
}

type emitParams struct {
	Event   string `mapstructure:"event"`
	Payload string `mapstructure:"payload"`
}

type cacheParams struct {
	Key      string `mapstructure:"key"`
	Value    string `mapstructure:"value"`
	TTL      string `mapstructure:"ttl"`
	Variable string `mapstructure:"variable"`
	Default  string `mapstructure:"default"`
}

// decode copies node attributes into a parameter struct. Unknown attributes are ignored.
func decode(attrs map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(attrs); err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	return nil
}
