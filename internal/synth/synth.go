// Package synth generates the OBS host filter and manifest for a converted lens.
package synth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/zot/lensconv/internal/metadata"
)

const (
	// MainShader is the generated filter file name.
	MainShader = "snap_filter.shader"
	// ManifestFile is the manifest file name.
	ManifestFile = "lens_info.json"
	// AssetsDir is the directory under the package root holding all output.
	AssetsDir = "obs_assets"
)

var filterTemplate = template.Must(template.New("filter").Parse(`// Snap Camera Filter for OBS
// Converted from: {{.Name}}
// Face Tracking: {{if .FaceTracking}}enabled{{else}}disabled{{end}}

uniform texture2d image;
uniform float2 uv_size;
uniform float elapsed_time;
uniform float4x4 ViewProj;
uniform float2 uv_scale;
uniform float2 uv_offset;

// Face tracking data (provided by plugin)
uniform bool face_detected;
uniform float2 face_center;      // Normalized 0-1
uniform float2 face_size;        // Width, height in UV space
uniform float face_rotation;     // Rotation in radians
uniform float face_confidence;   // 0-1 detection confidence

// Feature points (if available)
uniform float2 left_eye;
uniform float2 right_eye;
uniform float2 nose_tip;
uniform float2 mouth_center;
uniform float2 chin;

// Filter parameters
{{range .Params}}{{.Declaration}}

{{end}}float2 rotateUV(float2 uv, float2 center, float angle) {
    float2 delta = uv - center;
    float s = sin(angle);
    float c = cos(angle);
    float2 rotated = float2(
        delta.x * c - delta.y * s,
        delta.x * s + delta.y * c
    );
    return center + rotated;
}

float4 applyFaceEffect(float4 color, float2 uv, VertData v_in) {
    if (!face_detected || !use_face_mask) {
        return color;
    }

    // Calculate distance from face center
    float2 face_uv = face_center;
    float dist = distance(uv, face_uv);

    // Apply effect within face region
    float face_radius = max(face_size.x, face_size.y) * 0.6;
    float mask = smoothstep(face_radius, face_radius * 0.8, dist);

    // Blend with tint color
    float3 tinted = lerp(color.rgb, color.rgb * tint_color.rgb, mask * filter_intensity);

    return float4(tinted, color.a);
}

float4 mainImage(VertData v_in) : TARGET {
    float2 uv = v_in.uv;
    float4 color = image.Sample(textureSampler, uv);
{{if .FaceTracking}}
    // Apply face-tracked effects
    color = applyFaceEffect(color, uv, v_in);
{{end}}
    return color;
}
`))

type filterData struct {
	Name         string
	FaceTracking bool
	Params       []Param
}

// MainFilter renders the host filter for a lens. Only Name and FaceTracking
// affect the output.
func MainFilter(meta metadata.Metadata) string {
	var b strings.Builder
	data := filterData{
		Name:         commentSafe(meta.Name),
		FaceTracking: meta.FaceTracking,
		Params:       FilterParams,
	}
	if err := filterTemplate.Execute(&b, data); err != nil {
		// the template and its data are fixed; a failure is a programming error
		panic(fmt.Sprintf("synth: filter template: %v", err))
	}
	return b.String()
}

// commentSafe keeps a name on a single comment line.
func commentSafe(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Manifest describes a converted lens to the OBS plugin.
type Manifest struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	FaceTracking bool   `json:"face_tracking" yaml:"face_tracking"`
	Files        Files  `json:"files" yaml:"files"`
}

// Files lists the manifest's output files, relative to obs_assets.
type Files struct {
	MainShader string   `json:"main_shader" yaml:"main_shader"`
	Textures   []string `json:"textures" yaml:"textures"`
}

// NewManifest builds the manifest for meta and the produced texture names.
func NewManifest(meta metadata.Metadata, textures []string) Manifest {
	if textures == nil {
		textures = []string{}
	}
	return Manifest{
		Name:         meta.Name,
		Description:  meta.Description,
		FaceTracking: meta.FaceTracking,
		Files: Files{
			MainShader: MainShader,
			Textures:   textures,
		},
	}
}

// Write writes the main filter and manifest into outDir and returns their paths.
func Write(outDir string, meta metadata.Metadata, textures []string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	shaderPath := filepath.Join(outDir, MainShader)
	if err := os.WriteFile(shaderPath, []byte(MainFilter(meta)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", MainShader, err)
	}

	data, err := json.MarshalIndent(NewManifest(meta, textures), "", "  ")
	if err != nil {
		return nil, err
	}
	manifestPath := filepath.Join(outDir, ManifestFile)
	if err := os.WriteFile(manifestPath, append(data, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", ManifestFile, err)
	}

	return []string{shaderPath, manifestPath}, nil
}

// ReadManifest loads a manifest written by Write. path may be the manifest
// file, an obs_assets directory, or a converted package directory.
func ReadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if filepath.Base(path) != AssetsDir {
			path = filepath.Join(path, AssetsDir)
		}
		path = filepath.Join(path, ManifestFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if m.Files.MainShader == "" {
		m.Files.MainShader = MainShader
	}
	return &m, nil
}
