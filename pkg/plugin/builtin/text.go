package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aretw0/weft/pkg/plugin"
)

// TextName is the name of the text plugin.
const TextName = "text"

// Text contributes string functions.
type Text struct {
	plugin.Base
}

// NewText creates the text plugin.
func NewText() *Text {
	return &Text{Base: plugin.Base{Meta: plugin.Info{
		Name:        TextName,
		Version:     "1.0.0",
		Description: "String functions",
	}}}
}

// OnLoad registers the functions.
func (p *Text) OnLoad(_ context.Context, h plugin.Host) error {
	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	title := cases.Title(language.Und)

	h.RegisterFunction("upper", func(args string) (string, error) { return upper.String(args), nil })
	h.RegisterFunction("lower", func(args string) (string, error) { return lower.String(args), nil })
	h.RegisterFunction("title", func(args string) (string, error) { return title.String(args), nil })
	h.RegisterFunction("trim", func(args string) (string, error) { return strings.TrimSpace(args), nil })
	h.RegisterFunction("len", func(args string) (string, error) {
		return strconv.Itoa(utf8.RuneCountInString(args)), nil
	})
	h.RegisterFunction("repeat", repeat)
	return nil
}

// repeat accepts "text,count".
func repeat(args string) (string, error) {
	i := strings.LastIndex(args, ",")
	if i < 0 {
		return "", fmt.Errorf("repeat expects text,count, got %q", args)
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[i+1:]))
	if err != nil || n < 0 || n > 1000 {
		return "", fmt.Errorf("repeat: invalid count %q", args[i+1:])
	}
	return strings.Repeat(args[:i], n), nil
}
