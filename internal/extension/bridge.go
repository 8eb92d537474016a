package extension

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// goToLua converts a plain Go value (the JSON-shaped subset: nil, bool,
// numbers, strings, []any, map[string]any, plus a few convenience types the
// build pipeline produces) into a Lua value. Timestamps cross as RFC3339
// strings; anything else unknown becomes nil.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		tbl := L.NewTable()
		for _, s := range val {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, goToLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, lua.LString(item))
		}
		return tbl
	case time.Time:
		return lua.LString(val.UTC().Format(time.RFC3339))
	default:
		return lua.LNil
	}
}

// luaToGo converts a Lua value back into the JSON-shaped Go subset. Tables
// with a contiguous 1..n integer key sequence become []any, everything else
// becomes map[string]any with stringified keys.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		return tableToGo(val)
	default:
		return nil
	}
}

func tableToGo(tbl *lua.LTable) any {
	n := tbl.Len()
	if n > 0 {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			arr = append(arr, luaToGo(tbl.RawGetInt(i)))
		}
		// Mixed tables (array part plus string keys) degrade to a map below.
		mixed := false
		tbl.ForEach(func(k, _ lua.LValue) {
			if _, ok := k.(lua.LNumber); !ok {
				mixed = true
			}
		})
		if !mixed {
			return arr
		}
	}

	m := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		m[k.String()] = luaToGo(v)
	})
	if len(m) == 0 {
		return []any{}
	}
	return m
}
