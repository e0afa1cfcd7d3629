package shader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/zot/lensconv/internal/metadata"
)

// Dir is the shader directory name, both in the lens and under obs_assets.
const Dir = "shaders"

// UnreadableSourceError reports a shader file that could not be read.
type UnreadableSourceError struct {
	Path string
	Err  error
}

func (e *UnreadableSourceError) Error() string {
	return fmt.Sprintf("unreadable shader source %s: %v", e.Path, e.Err)
}

func (e *UnreadableSourceError) Unwrap() error { return e.Err }

// Artifact is one converted shader. It is not modified after creation.
type Artifact struct {
	Source string // path of the GLSL file
	Name   string // output file name
	Text   string
	Meta   metadata.Metadata
}

// TransformFunc may rewrite a converted shader before it is written.
type TransformFunc func(name, text string, meta metadata.Metadata) (string, error)

// Transpiler converts shader sources of one dialect.
type Transpiler struct {
	Dialect    *Dialect
	Standalone bool // emit a complete effect instead of a bare pixel shader
	Transform  TransformFunc
	Log        *zap.Logger
}

// NewTranspiler returns a transpiler for the default GLSL dialect.
func NewTranspiler(log *zap.Logger) *Transpiler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transpiler{Dialect: DefaultDialect(), Log: log}
}

// Transpile converts one shader source to OBS text.
func (t *Transpiler) Transpile(src string) (string, error) {
	rewritten := t.Dialect.Rewrite(src)

	body := rewritten
	if t.Dialect.EntryPoint != nil {
		extracted, found, err := EntryBody(rewritten, t.Dialect.EntryPoint)
		if err != nil {
			return "", err
		}
		if found {
			body = extracted
		}
	}

	out := Wrap(body)
	if t.Standalone {
		out = Standalone(out)
	}
	return out, nil
}

// TranspileFile reads and converts a single shader file.
func (t *Transpiler) TranspileFile(path string, meta metadata.Metadata) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &UnreadableSourceError{Path: path, Err: err}
	}

	text, err := t.Transpile(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + t.Dialect.TargetExt
	if t.Transform != nil {
		text, err = t.Transform(name, text, meta)
		if err != nil {
			return nil, fmt.Errorf("%s: transform: %w", path, err)
		}
	}

	if err := Check(text); err != nil {
		t.Log.Warn("converted shader failed structural check", zap.String("shader", name), zap.Error(err))
	}

	return &Artifact{Source: path, Name: name, Text: text, Meta: meta}, nil
}

// TranspileDir converts every source file in root/shaders into
// outDir/shaders. Per-shader failures are returned in skipped and do not
// stop the others; err is set only when output cannot be written. A missing
// shaders directory is not an error.
func (t *Transpiler) TranspileDir(root, outDir string, meta metadata.Metadata) (produced []string, skipped []error, err error) {
	srcDir := filepath.Join(root, Dir)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read %s: %w", srcDir, err)
	}

	dstDir := filepath.Join(outDir, Dir)
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", dstDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), t.Dialect.SourceExt) {
			continue
		}

		artifact, err := t.TranspileFile(filepath.Join(srcDir, entry.Name()), meta)
		if err != nil {
			t.Log.Warn("skipping shader", zap.String("shader", entry.Name()), zap.Error(err))
			skipped = append(skipped, err)
			continue
		}

		if err := os.WriteFile(filepath.Join(dstDir, artifact.Name), []byte(artifact.Text), 0644); err != nil {
			return produced, skipped, fmt.Errorf("failed to write %s: %w", artifact.Name, err)
		}
		t.Log.Info("converted shader", zap.String("shader", entry.Name()), zap.String("output", artifact.Name))
		produced = append(produced, artifact.Name)
	}
	return produced, skipped, nil
}
