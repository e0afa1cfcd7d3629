package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/zot/lensconv/internal/metadata"
)

func TestTransformShader(t *testing.T) {
	h, err := LoadString("test", `
function transform_shader(name, text, meta)
  if meta.face_tracking then
    return "// " .. name .. " (" .. meta.name .. ")\n" .. text
  end
  return nil
end
`, nil)
	require.NoError(t, err)
	defer h.Close()

	meta := metadata.Default()
	meta.Name = "Glow"
	out, err := h.TransformShader("a.shader", "body", meta)
	require.NoError(t, err)
	assert.Equal(t, "body", out, "nil keeps the text")

	meta.FaceTracking = true
	out, err = h.TransformShader("a.shader", "body", meta)
	require.NoError(t, err)
	assert.Equal(t, "// a.shader (Glow)\nbody", out)
}

func TestTransformShader_Undefined(t *testing.T) {
	h, err := LoadString("empty", `x = 1`, nil)
	require.NoError(t, err)
	defer h.Close()

	out, err := h.TransformShader("a.shader", "body", metadata.Default())
	require.NoError(t, err)
	assert.Equal(t, "body", out)
	assert.NoError(t, h.OnConverted(Result{File: "a.lns"}))
}

func TestTransformShader_Errors(t *testing.T) {
	h, err := LoadString("bad", `
function transform_shader(name, text, meta)
  if name == "boom.shader" then error("boom") end
  return 42
end
`, nil)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.TransformShader("boom.shader", "body", metadata.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = h.TransformShader("a.shader", "body", metadata.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want string")
}

func TestOnConverted(t *testing.T) {
	h, err := LoadString("collect", `
seen = {}
function on_converted(r)
  local entry = r.file .. ":" .. tostring(r.success) .. ":" .. (r.name or "nil") .. ":" .. #r.assets
  table.insert(seen, entry)
  log(entry)
end
`, nil)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.OnConverted(Result{File: "a.lns", Success: true, Name: "A", Assets: []string{"x", "y"}}))
	require.NoError(t, h.OnConverted(Result{File: "b.lns", Error: "corrupt"}))

	seen := h.state.GetGlobal("seen")
	require.Equal(t, "table", seen.Type().String())
	assert.Equal(t, "a.lns:true:A:2", h.state.GetTable(seen, lua.LNumber(1)).String())
	assert.Equal(t, "b.lns:false:nil:0", h.state.GetTable(seen, lua.LNumber(2)).String())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hook.lua")
	require.NoError(t, os.WriteFile(path, []byte(`function transform_shader(n, t, m) return t .. "!" end`), 0644))

	h, err := Load(path, nil)
	require.NoError(t, err)
	defer h.Close()

	out, err := h.TransformShader("a", "x", metadata.Default())
	require.NoError(t, err)
	assert.Equal(t, "x!", out)
}

func TestLoad_SyntaxError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hook.lua")
	require.NoError(t, os.WriteFile(path, []byte(`function (`), 0644))
	_, err := Load(path, nil)
	assert.Error(t, err)
}
