package shader

import (
	"strings"
)

// Preamble opens every converted pixel shader. It declares the uniforms OBS
// binds for a filter plus the face tracking scalars set by the plugin, and
// starts mainImage with uv and output_color in scope for the lifted body.
const Preamble = `// Converted from Snap Lens shader
uniform texture2d image;
uniform float2 uv_size;
uniform float elapsed_time;
uniform float4x4 ViewProj;

// Face tracking uniforms (if available)
uniform float2 face_position;
uniform float2 face_size;
uniform float face_rotation;

float4 mainImage(VertData v_in) : TARGET
{
    float2 uv = v_in.uv;
    float4 output_color = image.Sample(textureSampler, uv);

`

// Epilogue closes mainImage by returning the computed color.
const Epilogue = `
    return output_color;
}
`

// Wrap embeds a converted body in the OBS pixel shader template.
func Wrap(body string) string {
	var b strings.Builder
	b.Grow(len(Preamble) + len(body) + len(Epilogue))
	b.WriteString(Preamble)
	b.WriteString(body)
	b.WriteString(Epilogue)
	return b.String()
}

// effectUniforms are the declarations the default vertex shader depends on.
var effectUniforms = []Uniform{
	{Type: "float4x4", Name: "ViewProj"},
	{Type: "texture2d", Name: "image"},
	{Type: "float2", Name: "uv_scale"},
	{Type: "float2", Name: "uv_offset"},
	{Type: "float2", Name: "uv_size"},
	{Type: "float", Name: "elapsed_time"},
	{Type: "bool", Name: "face_detected"},
	{Type: "float2", Name: "face_center"},
	{Type: "float2", Name: "face_size"},
	{Type: "float", Name: "face_rotation"},
}

const effectHeader = `
sampler_state textureSampler {
    Filter = Linear;
    AddressU = Clamp;
    AddressV = Clamp;
};

struct VertData {
    float4 pos : POSITION;
    float2 uv : TEXCOORD0;
};

VertData VSDefault(VertData v_in)
{
    VertData vert_out;
    vert_out.pos = mul(float4(v_in.pos.xyz, 1.0), ViewProj);
    vert_out.uv = v_in.uv * uv_scale + uv_offset;
    return vert_out;
}

`

const effectFooter = `

technique Draw
{
    pass
    {
        vertex_shader = VSDefault(v_in);
        pixel_shader = mainImage(v_in);
    }
}
`

// Standalone turns a pixel shader defining mainImage into a complete OBS
// effect: missing uniforms, the sampler, vertex data, a default vertex
// shader and the Draw technique. Uniforms the pixel shader already declares
// are not declared twice. Input that already has a technique is returned
// unchanged.
func Standalone(pixel string) string {
	if strings.Contains(pixel, "technique ") {
		return pixel
	}

	declared := make(map[string]bool)
	for _, u := range Uniforms(pixel) {
		declared[u.Name] = true
	}

	var b strings.Builder
	for _, u := range effectUniforms {
		if declared[u.Name] {
			continue
		}
		b.WriteString("uniform " + u.Type + " " + u.Name + ";\n")
	}
	b.WriteString(effectHeader)
	b.WriteString(pixel)
	b.WriteString(effectFooter)
	return b.String()
}
