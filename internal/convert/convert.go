// Package convert runs the lens conversion pipeline for single packages and
// directories of packages.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zot/lensconv/internal/bundle"
	"github.com/zot/lensconv/internal/config"
	"github.com/zot/lensconv/internal/history"
	"github.com/zot/lensconv/internal/hook"
	"github.com/zot/lensconv/internal/metadata"
	"github.com/zot/lensconv/internal/shader"
	"github.com/zot/lensconv/internal/synth"
	"github.com/zot/lensconv/internal/texture"
)

// Result is the outcome of converting one package.
type Result struct {
	File     string // archive base name
	Path     string
	Success  bool
	Metadata *metadata.Metadata // nil on failure
	Assets   []string
	Err      error
}

// OutputDir is where the package's assets were written.
func (r Result) OutputDir(outputRoot string) string {
	return filepath.Join(outputRoot, bundle.PackageName(r.Path), synth.AssetsDir)
}

// Converter runs the pipeline. It is safe for concurrent use; conversions of
// packages that share a name are serialized.
type Converter struct {
	OutputDir     string
	KeepExtracted bool
	Workers       int
	Timeout       time.Duration // per package, 0 = none

	Textures *texture.Converter
	Shaders  *shader.Transpiler
	Hook     *hook.Hook      // optional
	History  history.Backend // optional

	Log *zap.Logger

	locksOnce sync.Once
	locks     *nameLocks
}

// New builds a converter from cfg, loading the hook script and opening the
// history backend when configured. Call Close when done.
func New(cfg *config.Config, log *zap.Logger) (*Converter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialect, err := cfg.Shader.Dialect()
	if err != nil {
		return nil, err
	}

	c := &Converter{
		OutputDir:     cfg.Output.Dir,
		KeepExtracted: cfg.Output.KeepExtracted,
		Workers:       cfg.Batch.Workers,
		Timeout:       cfg.Batch.Timeout.Duration(),
		Textures:      texture.NewConverter(log.Named("texture")),
		Shaders:       shader.NewTranspiler(log.Named("shader")),
		Log:           log,
	}
	c.Shaders.Standalone = cfg.Shader.Standalone
	c.Shaders.Dialect = dialect

	if cfg.Hooks.Script != "" {
		h, err := hook.Load(cfg.Hooks.Script, log.Named("hook"))
		if err != nil {
			return nil, err
		}
		c.Hook = h
		c.Shaders.Transform = h.TransformShader
	}

	backend, err := history.Open(cfg.History)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	c.History = backend

	return c, nil
}

// Close releases the hook and history backend.
func (c *Converter) Close() error {
	if c.Hook != nil {
		c.Hook.Close()
	}
	if c.History != nil {
		return c.History.Close()
	}
	return nil
}

// Convert converts a single package archive.
func (c *Converter) Convert(ctx context.Context, archivePath string) Result {
	return c.convert(ctx, uuid.NewString(), archivePath)
}

func (c *Converter) convert(ctx context.Context, runID, archivePath string) Result {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	log := c.logger().With(zap.String("package", filepath.Base(archivePath)))
	start := time.Now()

	r := Result{File: filepath.Base(archivePath), Path: archivePath}
	meta, assets, err := c.run(ctx, archivePath, log)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.Err = err
		log.Error("conversion failed", zap.Error(err))
	} else {
		r.Success = true
		r.Metadata = &meta
		r.Assets = assets
		log.Info("converted lens", zap.String("name", meta.Name), zap.Duration("elapsed", time.Since(start)))
	}

	c.record(runID, r, log)
	return r
}

// run performs the pipeline stages, checking ctx between them.
func (c *Converter) run(ctx context.Context, archivePath string, log *zap.Logger) (metadata.Metadata, []string, error) {
	var meta metadata.Metadata

	name := bundle.PackageName(archivePath)
	unlock, err := c.nameLocks().lock(ctx, name)
	if err != nil {
		return meta, nil, err
	}
	defer unlock()

	pkg, err := bundle.Extract(archivePath, c.OutputDir)
	if err != nil {
		return meta, nil, err
	}
	if err := ctx.Err(); err != nil {
		return meta, nil, err
	}

	outDir := filepath.Join(pkg.Root, synth.AssetsDir)

	var textures []string
	var g errgroup.Group
	g.Go(func() error {
		meta = metadata.Resolve(pkg.Root, log)
		return nil
	})
	g.Go(func() error {
		var err error
		textures, err = c.textures().Convert(pkg.Root, outDir)
		return err
	})
	if err := g.Wait(); err != nil {
		return meta, nil, err
	}
	if err := ctx.Err(); err != nil {
		return meta, nil, err
	}

	shaders, skipped, err := c.shaders().TranspileDir(pkg.Root, outDir, meta)
	if err != nil {
		return meta, nil, err
	}
	if len(skipped) > 0 {
		log.Warn("some shaders were skipped", zap.Int("skipped", len(skipped)))
	}
	if err := ctx.Err(); err != nil {
		return meta, nil, err
	}

	written, err := synth.Write(outDir, meta, textures)
	if err != nil {
		return meta, nil, err
	}

	if !c.KeepExtracted {
		if err := pruneExtracted(pkg.Root); err != nil {
			log.Warn("failed to remove extracted files", zap.Error(err))
		}
	}

	var assets []string
	for _, t := range textures {
		assets = append(assets, filepath.Join(outDir, texture.Dir, t))
	}
	for _, s := range shaders {
		assets = append(assets, filepath.Join(outDir, shader.Dir, s))
	}
	assets = append(assets, written...)
	return meta, assets, nil
}

// pruneExtracted removes everything under root except the assets directory.
func pruneExtracted(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == synth.AssetsDir {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// record stores the result in history and passes it to the hook. Failures
// here never change the result.
func (c *Converter) record(runID string, r Result, log *zap.Logger) {
	if c.History != nil {
		rec := &history.Record{
			RunID:   runID,
			File:    r.File,
			Success: r.Success,
		}
		if r.Metadata != nil {
			rec.Name = r.Metadata.Name
			rec.OutputDir = r.OutputDir(c.OutputDir)
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		if err := c.History.Store(rec); err != nil {
			log.Warn("failed to record history", zap.Error(err))
		}
	}

	if c.Hook != nil {
		hr := hook.Result{File: r.File, Success: r.Success, Assets: r.Assets}
		if r.Metadata != nil {
			hr.Name = r.Metadata.Name
		}
		if r.Err != nil {
			hr.Error = r.Err.Error()
		}
		if err := c.Hook.OnConverted(hr); err != nil {
			log.Warn("on_converted hook failed", zap.Error(err))
		}
	}
}

func (c *Converter) nameLocks() *nameLocks {
	c.locksOnce.Do(func() { c.locks = newNameLocks() })
	return c.locks
}

func (c *Converter) logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func (c *Converter) textures() *texture.Converter {
	if c.Textures == nil {
		return texture.NewConverter(c.logger())
	}
	return c.Textures
}

func (c *Converter) shaders() *shader.Transpiler {
	if c.Shaders == nil {
		return shader.NewTranspiler(c.logger())
	}
	return c.Shaders
}
