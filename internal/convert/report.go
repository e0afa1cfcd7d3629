package convert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ReportName is the report file name without extension.
const ReportName = "conversion_report"

// Report summarizes a batch run.
type Report struct {
	Total      int     `json:"total" yaml:"total"`
	Successful int     `json:"successful" yaml:"successful"`
	Failed     int     `json:"failed" yaml:"failed"`
	Lenses     []Entry `json:"lenses" yaml:"lenses"`
}

// Entry is one package in a report. Name is nil for failed packages.
type Entry struct {
	File    string  `json:"file" yaml:"file"`
	Success bool    `json:"success" yaml:"success"`
	Name    *string `json:"name" yaml:"name"`
}

// NewReport builds a report from results, deriving the counts.
func NewReport(results []Result) *Report {
	r := &Report{Total: len(results), Lenses: []Entry{}}
	for _, res := range results {
		e := Entry{File: res.File, Success: res.Success}
		if res.Success {
			r.Successful++
		} else {
			r.Failed++
		}
		if res.Metadata != nil {
			name := res.Metadata.Name
			e.Name = &name
		}
		r.Lenses = append(r.Lenses, e)
	}
	return r
}

// WriteReport writes the report into dir as json or yaml and returns its path.
func WriteReport(r *Report, dir, format string) (string, error) {
	var data []byte
	var err error
	var ext string
	switch format {
	case "", "json":
		ext = ".json"
		data, err = json.MarshalIndent(r, "", "  ")
		data = append(data, '\n')
	case "yaml":
		ext = ".yaml"
		data, err = yaml.Marshal(r)
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, ReportName+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if filepath.Ext(path) == ".yaml" {
		err = yaml.Unmarshal(data, &r)
	} else {
		err = json.Unmarshal(data, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &r, nil
}
