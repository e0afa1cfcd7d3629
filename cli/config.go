// This file re-exports config and conversion types for wrapper projects.
package cli

import (
	"github.com/zot/lensconv/internal/config"
	"github.com/zot/lensconv/internal/convert"
)

// Re-export config types for public API
type (
	Config        = config.Config
	OutputConfig  = config.OutputConfig
	BatchConfig   = config.BatchConfig
	HistoryConfig = config.HistoryConfig
	LoggingConfig = config.LoggingConfig
	Duration      = config.Duration
)

// Re-export conversion types for public API
type (
	Converter  = convert.Converter
	Result     = convert.Result
	Report     = convert.Report
	Inspection = convert.Inspection
)

// Re-export functions for public API
var (
	DefaultConfig = config.DefaultConfig
	LoadConfig    = config.Load
	NewConverter  = convert.New
	Inspect       = convert.Inspect
	WriteReport   = convert.WriteReport
)
