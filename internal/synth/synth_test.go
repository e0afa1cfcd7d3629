package synth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/lensconv/internal/metadata"
	"github.com/zot/lensconv/internal/shader"
)

func glow(faceTracking bool) metadata.Metadata {
	m := metadata.Default()
	m.Name = "Glow"
	m.Description = "soft glow"
	m.FaceTracking = faceTracking
	return m
}

func TestMainFilter_FaceTrackingBlock(t *testing.T) {
	out := MainFilter(glow(true))

	assert.Contains(t, out, "// Converted from: Glow\n")
	assert.Contains(t, out, "// Face Tracking: enabled\n")

	declared := map[string]string{}
	for _, u := range shader.Uniforms(out) {
		declared[u.Name] = u.Type
	}
	for name, typ := range map[string]string{
		"image":           "texture2d",
		"elapsed_time":    "float",
		"ViewProj":        "float4x4",
		"face_detected":   "bool",
		"face_center":     "float2",
		"face_size":       "float2",
		"face_rotation":   "float",
		"face_confidence": "float",
		"left_eye":        "float2",
		"right_eye":       "float2",
		"nose_tip":        "float2",
		"mouth_center":    "float2",
		"chin":            "float2",
		"tint_color":      "float4",
	} {
		assert.Equal(t, typ, declared[name], name)
	}

	assert.Contains(t, out, "float face_radius = max(face_size.x, face_size.y) * 0.6;")
	assert.Contains(t, out, "smoothstep(face_radius, face_radius * 0.8, dist)")
	assert.Contains(t, out, "float2 rotateUV(float2 uv, float2 center, float angle)")
	assert.Contains(t, out, "color = applyFaceEffect(color, uv, v_in);")
	assert.NoError(t, shader.Check(out))
}

func TestMainFilter_WithoutFaceTracking(t *testing.T) {
	out := MainFilter(glow(false))
	assert.Contains(t, out, "// Face Tracking: disabled\n")
	assert.NotContains(t, out, "color = applyFaceEffect(")
	// the uniform interface is the same either way
	assert.Equal(t, shader.Uniforms(MainFilter(glow(true))), shader.Uniforms(out))
	assert.NoError(t, shader.Check(out))
}

func TestMainFilter_OnlyNameAndFaceTrackingMatter(t *testing.T) {
	a := glow(true)
	b := glow(true)
	b.Description = "different"
	b.Author = "someone"
	b.Uses3D = true
	assert.Equal(t, MainFilter(a), MainFilter(b))
}

func TestMainFilter_NameStaysInComment(t *testing.T) {
	m := glow(false)
	m.Name = "Evil\nuniform float injected;"
	out := MainFilter(m)
	assert.Contains(t, out, "// Converted from: Evil uniform float injected;\n")
	assert.NotContains(t, out, "\nuniform float injected;")
}

func TestParamDeclaration(t *testing.T) {
	want := `uniform float filter_intensity<
    string label = "Filter Intensity";
    string widget_type = "slider";
    float minimum = 0.0;
    float maximum = 1.0;
    float step = 0.01;
> = 0.5;`
	assert.Equal(t, want, FilterParams[0].Declaration())

	assert.Equal(t, "uniform float4 tint_color<\n    string label = \"Tint Color\";\n> = { 1.0, 1.0, 1.0, 1.0 };",
		FilterParams[1].Declaration())
}

func TestWriteAndReadManifest(t *testing.T) {
	out := filepath.Join(t.TempDir(), AssetsDir)

	paths, err := Write(out, glow(true), []string{"a.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, MainShader), filepath.Join(out, ManifestFile)}, paths)

	raw, err := os.ReadFile(filepath.Join(out, ManifestFile))
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	want := map[string]any{
		"name":          "Glow",
		"description":   "soft glow",
		"face_tracking": true,
		"files": map[string]any{
			"main_shader": "snap_filter.shader",
			"textures":    []any{"a.png"},
		},
	}
	if diff := cmp.Diff(want, generic); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	shaderText, err := os.ReadFile(filepath.Join(out, MainShader))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(shaderText), "uniform bool face_detected;"))

	for _, p := range []string{out, filepath.Dir(out), filepath.Join(out, ManifestFile)} {
		m, err := ReadManifest(p)
		require.NoError(t, err, p)
		assert.Equal(t, NewManifest(glow(true), []string{"a.png"}), *m)
	}
}

func TestNewManifest_EmptyTexturesEncodeAsArray(t *testing.T) {
	data, err := json.Marshal(NewManifest(metadata.Default(), nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"textures":[]`)
}
