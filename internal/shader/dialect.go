// Package shader converts GLSL lens shaders into OBS effect shaders.
//
// Conversion is textual: an ordered table of literal substitutions rewrites
// the GLSL vocabulary, then the body of main() is lifted into a fixed OBS
// pixel shader template. There is no parser. Table order matters, since
// every rule runs over the output of the rules before it; Dialect.Validate
// rejects tables where an earlier rule's output would be rewritten again by
// a later rule.
package shader

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Rule replaces every occurrence of From with To.
type Rule struct {
	From string `toml:"from" json:"from"`
	To   string `toml:"to" json:"to"`
}

// Dialect describes a source vocabulary and how it maps onto OBS HLSL.
type Dialect struct {
	Name       string
	SourceExt  string // e.g. ".glsl"
	TargetExt  string // e.g. ".shader"
	EntryPoint *regexp.Regexp
	Rules      []Rule
}

// entrySample is the canonical signature the entry point pattern must keep matching after rewriting.
const entrySample = "void main()"

// DefaultDialect is the GLSL to OBS HLSL mapping used for Snap lenses.
func DefaultDialect() *Dialect {
	return &Dialect{
		Name:       "glsl",
		SourceExt:  ".glsl",
		TargetExt:  ".shader",
		EntryPoint: regexp.MustCompile(`\bvoid\s+main\s*\(\s*(?:void)?\s*\)`),
		Rules: []Rule{
			{"vec2", "float2"},
			{"vec3", "float3"},
			{"vec4", "float4"},
			{"mat2", "float2x2"},
			{"mat3", "float3x3"},
			{"mat4", "float4x4"},
			{"sampler2D", "texture2d"},
			{"texture2D", "image.Sample"},
			{"gl_FragCoord", "uv"},
			{"gl_FragColor", "output_color"},
			{"mix", "lerp"},
			{"fract", "frac"},
		},
	}
}

// WithRules returns a copy of d with extra appended after its own rules.
func (d *Dialect) WithRules(extra []Rule) *Dialect {
	out := *d
	out.Rules = append(append([]Rule(nil), d.Rules...), extra...)
	return &out
}

// Rewrite applies every rule in table order as an unconditional substring
// replacement.
func (d *Dialect) Rewrite(src string) string {
	for _, r := range d.Rules {
		src = strings.ReplaceAll(src, r.From, r.To)
	}
	return src
}

// Validate checks the ordering preconditions of the rule table:
//   - no rule has an empty From
//   - no rule's To contains the From of a later rule (it would be rewritten twice)
//   - no rule's From contains the From of an earlier rule (it could never match)
//   - the rules leave the entry point signature recognizable
func (d *Dialect) Validate() error {
	var errs []error
	for i, r := range d.Rules {
		if r.From == "" {
			errs = append(errs, fmt.Errorf("rule %d: empty pattern", i))
			continue
		}
		for j := i + 1; j < len(d.Rules); j++ {
			later := d.Rules[j]
			if later.From == "" {
				continue
			}
			if strings.Contains(r.To, later.From) {
				errs = append(errs, fmt.Errorf("rule %d (%s -> %s) produces %q which rule %d rewrites again",
					i, r.From, r.To, later.From, j))
			}
			if strings.Contains(later.From, r.From) {
				errs = append(errs, fmt.Errorf("rule %d (%s) is shadowed by earlier rule %d (%s)",
					j, later.From, i, r.From))
			}
		}
	}
	if d.EntryPoint != nil && !d.EntryPoint.MatchString(d.Rewrite(entrySample)) {
		errs = append(errs, fmt.Errorf("rules rewrite the entry point signature %q", entrySample))
	}
	return errors.Join(errs...)
}
