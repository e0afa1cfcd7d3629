package synth

import (
	"fmt"
	"strconv"
	"strings"
)

// Param is a user-tunable filter uniform. The UI hints are emitted as an
// OBS annotation block after the name.
type Param struct {
	Type    string
	Name    string
	Label   string
	Widget  string   // "slider", empty for the default widget
	Min     *float64 // nil when unbounded
	Max     *float64
	Step    *float64
	Default string // HLSL initializer
}

func bound(v float64) *float64 { return &v }

// FilterParams are the tunables every generated filter exposes.
var FilterParams = []Param{
	{
		Type:    "float",
		Name:    "filter_intensity",
		Label:   "Filter Intensity",
		Widget:  "slider",
		Min:     bound(0),
		Max:     bound(1),
		Step:    bound(0.01),
		Default: "0.5",
	},
	{
		Type:    "float4",
		Name:    "tint_color",
		Label:   "Tint Color",
		Default: "{ 1.0, 1.0, 1.0, 1.0 }",
	},
	{
		Type:    "bool",
		Name:    "use_face_mask",
		Label:   "Enable Face Mask",
		Default: "true",
	},
}

// Declaration renders the uniform with its annotation block.
func (p Param) Declaration() string {
	var b strings.Builder
	fmt.Fprintf(&b, "uniform %s %s<\n", p.Type, p.Name)
	fmt.Fprintf(&b, "    string label = %s;\n", strconv.Quote(p.Label))
	if p.Widget != "" {
		fmt.Fprintf(&b, "    string widget_type = %s;\n", strconv.Quote(p.Widget))
	}
	writeBound(&b, "minimum", p.Min)
	writeBound(&b, "maximum", p.Max)
	writeBound(&b, "step", p.Step)
	b.WriteString(">")
	if p.Default != "" {
		b.WriteString(" = " + p.Default)
	}
	b.WriteString(";")
	return b.String()
}

func writeBound(b *strings.Builder, name string, v *float64) {
	if v == nil {
		return
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	fmt.Fprintf(b, "    float %s = %s;\n", name, s)
}
