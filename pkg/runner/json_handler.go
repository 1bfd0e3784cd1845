package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/weft/pkg/convert"
)

// JSONHandler implements IOHandler for JSON-Lines communication. Every input
// line is a Command object, e.g. {"kind": "set", "name": "count", "value": 5};
// a bare JSON string runs the handler of that name. Every response is one
// Output object per line.
type JSONHandler struct {
	Encoder *json.Encoder

	pump *linePump
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{Encoder: json.NewEncoder(w), pump: newLinePump(r)}
}

func (h *JSONHandler) Read(ctx context.Context) (Command, error) {
	for {
		text, err := h.pump.next(ctx)
		if err != nil {
			return Command{}, err
		}
		text, err = CleanLine(text)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrUnknownCommand, err)
		}
		if text != "" {
			return parseJSONCommand(text)
		}
	}
}

func parseJSONCommand(text string) (Command, error) {
	var name string
	if err := json.Unmarshal([]byte(text), &name); err == nil {
		if !validName(name) {
			return Command{}, fmt.Errorf("%w: invalid handler name %q", ErrUnknownCommand, name)
		}
		return Command{Kind: CommandExecute, Name: name}, nil
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var cmd Command
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrUnknownCommand, err)
	}
	cmd.Kind = strings.ToLower(cmd.Kind)
	cmd.Value = convert.Normalize(cmd.Value)
	switch cmd.Kind {
	case CommandExecute, CommandSet, CommandGet:
		if !validName(cmd.Name) {
			return Command{}, fmt.Errorf("%w: %s needs a name", ErrUnknownCommand, cmd.Kind)
		}
	case CommandState, CommandHandlers, CommandQuit:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
	return cmd, nil
}

func (h *JSONHandler) Write(_ context.Context, out Output) error {
	return h.Encoder.Encode(out)
}
