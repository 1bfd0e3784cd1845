package builtin

import (
	"context"
	"strings"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
)

// DateTimeName is the name of the datetime plugin.
const DateTimeName = "datetime"

// DateTime contributes clock functions and the Stamp command.
type DateTime struct {
	plugin.Base
	host plugin.Host
	now  func() time.Time
}

// NewDateTime creates the datetime plugin reading the wall clock.
func NewDateTime() *DateTime {
	return NewDateTimeWithClock(time.Now)
}

// NewDateTimeWithClock creates the datetime plugin with a custom clock.
func NewDateTimeWithClock(now func() time.Time) *DateTime {
	return &DateTime{
		Base: plugin.Base{Meta: plugin.Info{
			Name:        DateTimeName,
			Version:     "1.0.0",
			Description: "Clock functions and the Stamp command",
		}},
		now: now,
	}
}

// OnLoad registers the functions and commands.
func (p *DateTime) OnLoad(_ context.Context, h plugin.Host) error {
	p.host = h
	h.RegisterFunction("now", func(layout string) (string, error) {
		return p.now().Format(layoutOr(layout, time.RFC3339)), nil
	})
	h.RegisterFunction("today", func(string) (string, error) {
		return p.now().Format(time.DateOnly), nil
	})
	h.RegisterFunction("unix", func(string) (string, error) {
		return formatNumber(float64(p.now().Unix())), nil
	})
	h.RegisterCommand("stamp", p.stamp)
	return nil
}

// stamp writes the current time to Variable using Format (Go layout or a named one).
func (p *DateTime) stamp(ctx context.Context, node *domain.HandlerNode, _ any) bool {
	name, _ := node.Attr("Variable")
	if name == "" || p.host == nil {
		return false
	}
	format, _ := node.Attr("Format")
	p.host.SetVariable(ctx, name, p.now().Format(layoutOr(format, time.RFC3339)))
	return true
}

var namedLayouts = map[string]string{
	"rfc3339":  time.RFC3339,
	"date":     time.DateOnly,
	"time":     time.TimeOnly,
	"datetime": time.DateTime,
	"kitchen":  time.Kitchen,
}

func layoutOr(layout, def string) string {
	layout = strings.TrimSpace(layout)
	if layout == "" {
		return def
	}
	if l, ok := namedLayouts[strings.ToLower(layout)]; ok {
		return l
	}
	return layout
}
