package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zot/lensconv/internal/bundle"
	"github.com/zot/lensconv/internal/metadata"
	"github.com/zot/lensconv/internal/shader"
	"github.com/zot/lensconv/internal/synth"
)

// Inspection describes a lens archive or a converted package directory.
type Inspection struct {
	Path     string             `json:"path" yaml:"path"`
	Kind     string             `json:"kind" yaml:"kind"` // "archive" or "converted"
	Metadata *metadata.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Manifest *synth.Manifest    `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Entries  []bundle.FileInfo  `json:"entries,omitempty" yaml:"entries,omitempty"`
	Shaders  []ShaderInfo       `json:"shaders" yaml:"shaders"`
}

// ShaderInfo lists the uniforms one shader declares.
type ShaderInfo struct {
	Name     string           `json:"name" yaml:"name"`
	Uniforms []shader.Uniform `json:"uniforms" yaml:"uniforms"`
}

// Inspect reads p without converting anything. p is either an archive or a
// directory produced by a conversion.
func Inspect(p string) (*Inspection, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Join(bundle.ErrPackageNotFound, err)
		}
		return nil, err
	}
	if info.IsDir() {
		return inspectConverted(p)
	}
	return inspectArchive(p)
}

func inspectArchive(p string) (*Inspection, error) {
	entries, err := bundle.List(p)
	if err != nil {
		return nil, err
	}

	meta := metadata.Default()
	meta.Name = bundle.PackageName(p)
	if data, err := bundle.ReadFile(p, metadata.DescriptorFile); err == nil {
		if parsed, err := metadata.Parse(data); err == nil {
			meta = parsed
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	in := &Inspection{Path: p, Kind: "archive", Metadata: &meta, Entries: entries, Shaders: []ShaderInfo{}}
	for _, e := range entries {
		if path.Dir(e.Name) != shader.Dir || e.IsSymlink || !strings.EqualFold(path.Ext(e.Name), ".glsl") {
			continue
		}
		src, err := bundle.ReadFile(p, e.Name)
		if err != nil {
			return nil, err
		}
		in.Shaders = append(in.Shaders, ShaderInfo{Name: path.Base(e.Name), Uniforms: shader.Uniforms(string(src))})
	}
	return in, nil
}

func inspectConverted(dir string) (*Inspection, error) {
	m, err := synth.ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	assets := dir
	if filepath.Base(dir) != synth.AssetsDir {
		assets = filepath.Join(dir, synth.AssetsDir)
	}

	mainShader := filepath.FromSlash(m.Files.MainShader)
	if !filepath.IsLocal(mainShader) {
		return nil, fmt.Errorf("manifest main shader: %w", &bundle.UnsafePathError{Entry: m.Files.MainShader})
	}
	root, err := os.OpenRoot(assets)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	in := &Inspection{Path: dir, Kind: "converted", Manifest: m, Shaders: []ShaderInfo{}}
	names := []string{mainShader}
	shaderDir := filepath.Join(assets, shader.Dir)
	if entries, err := os.ReadDir(shaderDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, filepath.Join(shader.Dir, e.Name()))
			}
		}
	}
	for _, name := range names {
		src, err := root.ReadFile(name)
		if err != nil {
			return nil, err
		}
		in.Shaders = append(in.Shaders, ShaderInfo{Name: filepath.ToSlash(name), Uniforms: shader.Uniforms(string(src))})
	}
	return in, nil
}
