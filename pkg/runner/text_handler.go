package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/aretw0/weft/pkg/convert"
)

// TextHandler reads line commands and writes plain text.
//
//	inc             run the handler inc
//	run inc         same
//	set count 5     write a variable; the value is JSON or text
//	get count       print one variable
//	state           print every variable
//	handlers        list the handlers
//	quit            stop (also exit)
type TextHandler struct {
	Writer io.Writer
	Prompt string

	pump *linePump
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithPrompt writes prompt before every read. Useful on terminals only.
func WithPrompt(prompt string) TextHandlerOption {
	return func(h *TextHandler) {
		h.Prompt = prompt
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{Writer: w, pump: newLinePump(r)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) Read(ctx context.Context) (Command, error) {
	for {
		if h.Prompt != "" {
			fmt.Fprint(h.Writer, h.Prompt)
		}
		text, err := h.pump.next(ctx)
		if err != nil {
			return Command{}, err
		}
		text, err = CleanLine(text)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrUnknownCommand, err)
		}
		if text != "" {
			return parseTextCommand(text)
		}
	}
}

func parseTextCommand(text string) (Command, error) {
	verb, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(verb) {
	case "quit", "exit":
		return Command{Kind: CommandQuit}, nil
	case "state":
		return Command{Kind: CommandState}, nil
	case "handlers":
		return Command{Kind: CommandHandlers}, nil
	case "get":
		if !validName(rest) {
			return Command{}, fmt.Errorf("%w: get needs one variable name", ErrUnknownCommand)
		}
		return Command{Kind: CommandGet, Name: rest}, nil
	case "set":
		name, raw, ok := strings.Cut(rest, " ")
		if !ok || !validName(name) {
			return Command{}, fmt.Errorf("%w: usage: set <name> <value>", ErrUnknownCommand)
		}
		return Command{Kind: CommandSet, Name: name, Value: convert.ParseJSON(strings.TrimSpace(raw))}, nil
	case "run":
		if !validName(rest) {
			return Command{}, fmt.Errorf("%w: run needs one handler name", ErrUnknownCommand)
		}
		return Command{Kind: CommandExecute, Name: rest}, nil
	}
	if rest != "" || !validName(verb) {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
	return Command{Kind: CommandExecute, Name: verb}, nil
}

func (h *TextHandler) Write(_ context.Context, out Output) error {
	var b strings.Builder
	switch out.Type {
	case OutputChanges:
		for _, c := range out.Changes {
			if c.Deleted {
				fmt.Fprintf(&b, "%s deleted\n", c.Name)
				continue
			}
			fmt.Fprintf(&b, "%s = %s\n", c.Name, convert.ToString(c.Value))
		}
	case OutputValue:
		fmt.Fprintf(&b, "%s = %s\n", out.Name, convert.ToString(out.Value))
	case OutputState:
		keys := make([]string, 0, len(out.State))
		for k := range out.State {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s = %s\n", k, convert.ToString(out.State[k]))
		}
	case OutputHandlers:
		for _, name := range out.Items {
			b.WriteString(name + "\n")
		}
	case OutputError:
		fmt.Fprintf(&b, "error: %s\n", out.Error)
	}
	_, err := io.WriteString(h.Writer, b.String())
	return err
}
