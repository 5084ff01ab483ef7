package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// scriptMatcher evaluates a Lua predicate. The chunk is compiled once;
// evaluation runs on pooled states because an LState is not safe for
// concurrent use.
type scriptMatcher struct {
	src     string
	proto   *lua.FunctionProto
	timeout time.Duration
	pool    sync.Pool
}

// DefaultScriptTimeout bounds a single script evaluation.
const DefaultScriptTimeout = 100 * time.Millisecond

// ScriptOption configures a script matcher.
type ScriptOption func(*scriptMatcher)

// WithScriptTimeout sets how long one evaluation may run. A script that
// runs longer is interrupted and does not match. Zero disables the bound.
func WithScriptTimeout(d time.Duration) ScriptOption {
	return func(m *scriptMatcher) {
		m.timeout = d
	}
}

// Script compiles a Lua predicate. src is either an expression such as
// `not canceled and subscriber ~= ""` or a chunk ending in a return
// statement. The script sees the globals:
//
//	topic       topic URI
//	publisher   broker name of the publisher ("" if unnamed)
//	subscriber  broker name of the subscriber ("" if unnamed)
//	canceled    cancel flag of cancelable arguments, false otherwise
//	args        the event arguments converted through their JSON form
//
// A script that fails at runtime or exceeds its timeout does not match.
func Script(src string, opts ...ScriptOption) (Matcher, error) {
	proto, err := compile("return "+src, src)
	if err != nil {
		proto, err = compile(src, src)
		if err != nil {
			return nil, fmt.Errorf("compiling matcher script: %w", err)
		}
	}

	m := &scriptMatcher{src: src, proto: proto, timeout: DefaultScriptTimeout}
	for _, opt := range opts {
		opt(m)
	}
	m.pool.New = func() any { return newScriptState() }
	return m, nil
}

// MustScript is like Script but panics when src does not compile.
func MustScript(src string, opts ...ScriptOption) Matcher {
	m, err := Script(src, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func compile(code, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(code), name)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, name)
}

// newScriptState opens only the side-effect free libraries.
func newScriptState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	return L
}

// Match evaluates the script. A state goes back to the pool only after an
// evaluation that completed; otherwise it is closed.
func (m *scriptMatcher) Match(pub Publication, sub Subscription, args any) (matched bool) {
	L := m.pool.Get().(*lua.LState)
	reuse := false
	defer func() {
		if r := recover(); r != nil {
			matched = false
		}
		if reuse {
			m.pool.Put(L)
		} else {
			L.Close()
		}
	}()

	if m.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	canceled := false
	if c, ok := args.(Cancelable); ok {
		canceled = c.Canceled()
	}

	L.SetGlobal("topic", lua.LString(sub.TopicURI()))
	L.SetGlobal("publisher", lua.LString(nameOf(pub.Publisher())))
	L.SetGlobal("subscriber", lua.LString(nameOf(sub.Subscriber())))
	L.SetGlobal("canceled", lua.LBool(canceled))
	L.SetGlobal("args", toLua(L, jsonValue(args)))

	top := L.GetTop()
	defer L.SetTop(top)

	L.Push(L.NewFunctionFromProto(m.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return false
	}
	matched = lua.LVAsBool(L.Get(-1))
	reuse = true
	return matched
}

func (m *scriptMatcher) DescribeTo(w io.Writer) {
	describef(w, "script %q", m.src)
}

// jsonValue returns the generic JSON form of v, or nil.
func jsonValue(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// toLua converts a generic JSON value into a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []any:
		tbl := L.NewTable()
		for _, item := range v {
			tbl.Append(toLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range v {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(v))
	}
}
