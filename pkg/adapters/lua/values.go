package lua

import (
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/aretw0/weft/pkg/convert"
)

// toGo converts a Lua value into the state value model: whole numbers become
// int64, sequences []any, other tables map[string]any.
func toGo(v lua.LValue) any {
	return toGoVisited(v, make(map[*lua.LTable]bool))
}

func toGoVisited(v lua.LValue, seen map[*lua.LTable]bool) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return convert.Number(float64(x))
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if seen[x] {
			return nil
		}
		seen[x] = true
		if n := x.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, toGoVisited(x.RawGetInt(i), seen))
			}
			return out
		}
		out := make(map[string]any)
		x.ForEach(func(k, val lua.LValue) {
			out[k.String()] = toGoVisited(val, seen)
		})
		return out
	case *lua.LUserData:
		return x.Value
	}
	return nil
}

// toLua converts a Go value into a Lua value. Unknown types become strings.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int, int32, int64, float32, float64, uint64:
		f, _ := convert.ToFloat(x)
		return lua.LNumber(f)
	case []any:
		t := L.NewTable()
		for _, item := range x {
			t.Append(toLua(L, item))
		}
		return t
	case []string:
		t := L.NewTable()
		for _, item := range x {
			t.Append(lua.LString(item))
		}
		return t
	case map[string]string:
		t := L.NewTable()
		for _, k := range sortedKeys(x) {
			t.RawSetString(k, lua.LString(x[k]))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range x {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	}
	return lua.LString(convert.ToString(v))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
