package shader

import (
	"errors"
	"regexp"
	"strings"
)

// Uniform is a declared shader parameter.
type Uniform struct {
	Type string `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`
}

var uniformPattern = regexp.MustCompile(`uniform\s+(\w+)\s+(\w+)`)

// Uniforms lists uniform declarations in source order.
func Uniforms(src string) []Uniform {
	var out []Uniform
	for _, m := range uniformPattern.FindAllStringSubmatch(src, -1) {
		out = append(out, Uniform{Type: m[1], Name: m[2]})
	}
	return out
}

var (
	errNoEntryPoint    = errors.New("shader must contain mainImage() or main() function")
	errNoReturn        = errors.New("shader must have a return statement")
	errUnbalancedBrace = errors.New("unbalanced braces in shader")
)

// Check performs the structural checks OBS output must pass: an entry
// point, a return statement and balanced braces. It does not compile.
func Check(src string) error {
	if !strings.Contains(src, "mainImage") && !strings.Contains(src, "main") {
		return errNoEntryPoint
	}
	if !strings.Contains(src, "return") {
		return errNoReturn
	}
	depth := 0
	for i := 0; i < len(src); i++ {
		if skip := commentEnd(src, i); skip > i {
			i = skip - 1
			continue
		}
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return errUnbalancedBrace
			}
		}
	}
	if depth != 0 {
		return errUnbalancedBrace
	}
	return nil
}
