package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zot/lensconv/internal/bundle"
)

// Discover lists the package archives directly inside dir: every .lns file,
// then every .zip file, each group sorted by name. Extensions match
// case-insensitively.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, ext := range bundle.Extensions {
		var group []string
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
				group = append(group, filepath.Join(dir, e.Name()))
			}
		}
		sort.Strings(group)
		paths = append(paths, group...)
	}
	return paths, nil
}

// Batch converts every package in dir and returns the report. A package
// failure is recorded in the report and never stops the batch; the error
// is set only when dir cannot be read.
func (c *Converter) Batch(ctx context.Context, dir string) (*Report, error) {
	paths, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	return c.BatchFiles(ctx, paths), nil
}

// BatchFiles converts paths on the worker pool. Results keep the order of
// paths.
func (c *Converter) BatchFiles(ctx context.Context, paths []string) *Report {
	runID := uuid.NewString()
	log := c.logger().With(zap.String("run", runID))
	log.Info("starting batch", zap.Int("packages", len(paths)), zap.Int("workers", c.workers()))

	results := make([]Result, len(paths))
	var g errgroup.Group
	g.SetLimit(c.workers())
	for i, p := range paths {
		g.Go(func() error {
			results[i] = c.convert(ctx, runID, p)
			return nil
		})
	}
	g.Wait()

	report := NewReport(results)
	log.Info("batch complete",
		zap.Int("total", report.Total),
		zap.Int("successful", report.Successful),
		zap.Int("failed", report.Failed))
	return report
}

func (c *Converter) workers() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}
