// Package hook runs user Lua scripts around lens conversion.
//
// A script may define any of these globals:
//
//	function transform_shader(name, text, meta) return text end
//	function on_converted(result) end
//
// meta and result are plain tables. transform_shader returning nil keeps the
// text unchanged. The script can call log(msg) to write to the converter log.
package hook

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/zot/lensconv/internal/metadata"
)

// Hook is a loaded script. A single Lua state is shared, so calls are serialized.
type Hook struct {
	path  string
	state *lua.LState
	log   *zap.Logger
	mu    sync.Mutex
}

// Result is what on_converted receives.
type Result struct {
	File    string
	Success bool
	Name    string
	Error   string
	Assets  []string
}

// Load runs the script at path and returns the hook.
func Load(path string, log *zap.Logger) (*Hook, error) {
	h := newHook(path, log)
	if err := h.state.DoFile(path); err != nil {
		h.state.Close()
		return nil, fmt.Errorf("failed to load hook %s: %w", path, err)
	}
	return h, nil
}

// LoadString runs script source instead of a file.
func LoadString(name, code string, log *zap.Logger) (*Hook, error) {
	h := newHook(name, log)
	if err := h.state.DoString(code); err != nil {
		h.state.Close()
		return nil, fmt.Errorf("failed to load hook %s: %w", name, err)
	}
	return h, nil
}

func newHook(name string, log *zap.Logger) *Hook {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hook{path: name, state: lua.NewState(), log: log.With(zap.String("hook", name))}
	h.state.SetGlobal("log", h.state.NewFunction(h.luaLog))
	return h
}

func (h *Hook) luaLog(L *lua.LState) int {
	h.log.Info(L.CheckString(1))
	return 0
}

// Close releases the Lua state.
func (h *Hook) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Close()
}

// function returns the named global if it is a function.
func (h *Hook) function(name string) *lua.LFunction {
	fn, _ := h.state.GetGlobal(name).(*lua.LFunction)
	return fn
}

// TransformShader passes a converted shader through transform_shader.
// It matches shader.TransformFunc.
func (h *Hook) TransformShader(name, text string, meta metadata.Metadata) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fn := h.function("transform_shader")
	if fn == nil {
		return text, nil
	}

	L := h.state
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
		lua.LString(name), lua.LString(text), h.metaTable(meta)); err != nil {
		return "", fmt.Errorf("transform_shader: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	switch v := ret.(type) {
	case lua.LString:
		return string(v), nil
	case *lua.LNilType:
		return text, nil
	default:
		return "", fmt.Errorf("transform_shader returned %s, want string", ret.Type())
	}
}

// OnConverted reports a finished conversion to on_converted.
func (h *Hook) OnConverted(r Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	fn := h.function("on_converted")
	if fn == nil {
		return nil
	}

	L := h.state
	tbl := L.NewTable()
	tbl.RawSetString("file", lua.LString(r.File))
	tbl.RawSetString("success", lua.LBool(r.Success))
	if r.Name != "" {
		tbl.RawSetString("name", lua.LString(r.Name))
	}
	if r.Error != "" {
		tbl.RawSetString("error", lua.LString(r.Error))
	}
	assets := L.NewTable()
	for _, a := range r.Assets {
		assets.Append(lua.LString(a))
	}
	tbl.RawSetString("assets", assets)

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, tbl); err != nil {
		return fmt.Errorf("on_converted: %w", err)
	}
	return nil
}

func (h *Hook) metaTable(meta metadata.Metadata) *lua.LTable {
	tbl := h.state.NewTable()
	tbl.RawSetString("name", lua.LString(meta.Name))
	tbl.RawSetString("description", lua.LString(meta.Description))
	tbl.RawSetString("version", lua.LString(meta.Version))
	tbl.RawSetString("author", lua.LString(meta.Author))
	tbl.RawSetString("category", lua.LString(meta.Category))
	tbl.RawSetString("face_tracking", lua.LBool(meta.FaceTracking))
	tbl.RawSetString("uses_audio", lua.LBool(meta.UsesAudio))
	tbl.RawSetString("uses_3d", lua.LBool(meta.Uses3D))
	return tbl
}
