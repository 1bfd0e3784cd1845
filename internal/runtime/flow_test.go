package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/state"
	"github.com/stretchr/testify/assert"
)

// record builds Append attributes that collect a loop variable into "seen".
func record(variable string) map[string]string {
	return map[string]string{"Variable": "seen", "Value": "{" + variable + "}"}
}

func seen(t *testing.T, s *state.Store) []any {
	t.Helper()
	v, ok := s.Get("seen")
	if !ok {
		return nil
	}
	return v.([]any)
}

func TestFor_RangeExcludesEnd(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("For", map[string]string{"Variable": "i", "Range": "0,5"},
			node("Append", record("i")),
		),
	), nil)

	assert.Equal(t, []any{int64(0), int64(1), int64(2), int64(3), int64(4)}, seen(t, s))
}

func TestFor_Variants(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		want  []any
	}{
		{"range end only", map[string]string{"Range": "3"}, []any{int64(0), int64(1), int64(2)}},
		{"range with step", map[string]string{"Range": "0,10,4"}, []any{int64(0), int64(4), int64(8)}},
		{"explicit bounds", map[string]string{"Start": "2", "End": "4"}, []any{int64(2), int64(3)}},
		{"counting down", map[string]string{"Start": "3", "End": "0", "Step": "-1"}, []any{int64(3), int64(2), int64(1)}},
		{"zero step becomes one", map[string]string{"Range": "0,2,0"}, []any{int64(0), int64(1)}},
		{"wrong direction runs nothing", map[string]string{"Start": "0", "End": "3", "Step": "-1"}, nil},
		{"fractional step", map[string]string{"Range": "0,1,0.5"}, []any{int64(0), 0.5}},
		{"bounds from state", map[string]string{"Start": "{from}", "End": "{to}"}, []any{int64(1), int64(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := state.New()
			s.Set(ctx, "from", int64(1))
			s.Set(ctx, "to", int64(3))
			in := runtime.NewInterpreter(s, nil, nil)

			attrs := map[string]string{"Variable": "i"}
			for k, v := range tt.attrs {
				attrs[k] = v
			}
			in.Run(ctx, "h", handler(node("For", attrs, node("Append", record("i")))), nil)

			assert.Equal(t, tt.want, seen(t, s))
		})
	}
}

func TestFor_BreakStopsLoopButNotSiblings(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("For", map[string]string{"Variable": "i", "Range": "0,10"},
			node("If", map[string]string{"Condition": "i == 3"}, node("Break", nil)),
			node("Append", record("i")),
		),
		node("Set", map[string]string{"Variable": "after", "Value": "done"}),
	), nil)

	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, seen(t, s))
	assert.Equal(t, "done", get(t, s, "after"))
}

func TestFor_ContinueSkipsRestOfBody(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("For", map[string]string{"Variable": "i", "Range": "0,5"},
			node("Set", map[string]string{"Variable": "odd", "Value": "{i}"}),
			node("Modulo", map[string]string{"Variable": "odd", "Value": "2"}),
			node("If", map[string]string{"Condition": "odd == 1"}, node("Continue", nil)),
			node("Append", record("i")),
		),
	), nil)

	assert.Equal(t, []any{int64(0), int64(2), int64(4)}, seen(t, s))
}

func TestNestedLoops_BreakOnlyLeavesInner(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("For", map[string]string{"Variable": "i", "Range": "3"},
			node("For", map[string]string{"Variable": "j", "Range": "3"},
				node("If", map[string]string{"Condition": "j == 1"}, node("Break", nil)),
				node("Increment", map[string]string{"Variable": "inner"}),
			),
			node("Increment", map[string]string{"Variable": "outer"}),
		),
	), nil)

	assert.Equal(t, int64(3), get(t, s, "inner"))
	assert.Equal(t, int64(3), get(t, s, "outer"))
}

func TestBreakOutsideLoopEndsHandler(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("Set", map[string]string{"Variable": "a", "Value": "1"}),
		node("Break", nil),
		node("Set", map[string]string{"Variable": "b", "Value": "1"}),
	), nil)

	_, ok := s.Get("b")
	assert.False(t, ok)
}

func TestBreakDoesNotLeakIntoStateVariables(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	s.Set(ctx, "break", "user value")
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("For", map[string]string{"Range": "5"}, node("Break", nil)),
	), nil)

	assert.Equal(t, "user value", get(t, s, "break"))
	assert.Equal(t, []string{"break"}, s.Names())
}

func TestWhile_RunsUntilConditionFails(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	s.Set(ctx, "n", int64(0))
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("While", map[string]string{"Condition": "n < 5"},
			node("Increment", map[string]string{"Variable": "n"}),
		),
	), nil)

	assert.Equal(t, int64(5), get(t, s, "n"))
}

func TestWhile_CapEndsSilently(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	in := runtime.NewInterpreter(s, nil, nil)

	res := in.Run(ctx, "h", handler(
		node("While", map[string]string{"Condition": "true"},
			node("Increment", map[string]string{"Variable": "n"}),
		),
		node("Set", map[string]string{"Variable": "after", "Value": "ran"}),
	), nil)

	assert.Equal(t, int64(runtime.DefaultMaxWhileIterations), get(t, s, "n"))
	assert.Equal(t, "ran", get(t, s, "after"))
	assert.Equal(t, 0, res.Failures, "cap exhaustion is not reported as a failure")
}

func TestWhile_CustomCaps(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	in := runtime.NewInterpreter(s, nil, nil, runtime.WithMaxWhileIterations(10))

	in.Run(ctx, "h", handler(
		node("While", map[string]string{"Condition": "true"},
			node("Increment", map[string]string{"Variable": "a"})),
		node("While", map[string]string{"Condition": "true", "MaxIterations": "3"},
			node("Increment", map[string]string{"Variable": "b"})),
	), nil)

	assert.Equal(t, int64(10), get(t, s, "a"))
	assert.Equal(t, int64(3), get(t, s, "b"))
}

func TestWhile_StopsWhenContextCancelled(t *testing.T) {
	s := state.New()
	in := runtime.NewInterpreter(s, nil, nil, runtime.WithMaxWhileIterations(1_000_000))
	ctx, cancel := context.WithCancel(context.Background())

	s.Subscribe(func(_ context.Context, c state.Change) {
		if c.Name == "n" && c.New == int64(10) {
			cancel()
		}
	})

	done := make(chan struct{})
	go func() {
		in.Run(ctx, "h", handler(
			node("While", map[string]string{"Condition": "true"},
				node("Increment", map[string]string{"Variable": "n"})),
		), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("while loop ignored cancellation")
	}
	assert.Equal(t, int64(10), get(t, s, "n"))
}

func TestForEach_ListAndString(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	s.Set(ctx, "fruits", []any{"apple", "pear"})
	s.Set(ctx, "word", "hey")
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("ForEach", map[string]string{"Variable": "f", "In": "fruits", "Index": "idx"},
			node("Append", record("f")),
		),
		node("ForEach", map[string]string{"Variable": "c", "In": "{word}"},
			node("Append", record("c")),
		),
		node("ForEach", map[string]string{"Variable": "x", "In": "ghost"},
			node("Append", record("x")),
		),
	), nil)

	assert.Equal(t, []any{"apple", "pear", "h", "e", "y"}, seen(t, s))
	assert.Equal(t, int64(1), get(t, s, "idx"))
}

func TestIf_ElseBranch(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	s.Set(ctx, "score", int64(4))
	in := runtime.NewInterpreter(s, nil, nil)

	in.Run(ctx, "h", handler(
		node("If", map[string]string{"Condition": "score >= 5 and not blocked"},
			node("Set", map[string]string{"Variable": "grade", "Value": "pass"}),
			node("Else", nil,
				node("Set", map[string]string{"Variable": "grade", "Value": "fail"}),
			),
		),
	), nil)
	assert.Equal(t, "fail", get(t, s, "grade"))

	s.Set(ctx, "score", int64(9))
	in.Run(ctx, "h", handler(
		node("If", map[string]string{"Condition": "{score} >= 5 && !blocked"},
			node("Set", map[string]string{"Variable": "grade", "Value": "pass"}),
			node("Else", nil,
				node("Set", map[string]string{"Variable": "grade", "Value": "fail"}),
			),
		),
	), nil)
	assert.Equal(t, "pass", get(t, s, "grade"))
}
