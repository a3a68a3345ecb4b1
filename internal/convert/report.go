package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Status is the outcome of one file
type Status string

const (
	StatusConverted Status = "converted"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// FileReport records what happened to one file
type FileReport struct {
	Path     string   `json:"path" yaml:"path"`
	Output   string   `json:"output,omitempty" yaml:"output,omitempty"`
	Status   Status   `json:"status" yaml:"status"`
	Fallback bool     `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Imports  []string `json:"imports,omitempty" yaml:"imports,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
	Diff     string   `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Summary counts files by status
type Summary struct {
	Total     int `json:"total" yaml:"total"`
	Converted int `json:"converted" yaml:"converted"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Report describes a conversion run
type Report struct {
	RunID      string       `json:"run_id" yaml:"run_id"`
	Commit     string       `json:"commit,omitempty" yaml:"commit,omitempty"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Summary    Summary      `json:"summary" yaml:"summary"`
	Files      []FileReport `json:"files" yaml:"files"`
}

// NewReport starts a report with a fresh run ID
func NewReport() *Report {
	return &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Files:     []FileReport{},
	}
}

// Add records a file outcome
func (r *Report) Add(fr FileReport) {
	r.Files = append(r.Files, fr)
	r.Summary.Total++
	switch fr.Status {
	case StatusConverted:
		r.Summary.Converted++
	case StatusUnchanged:
		r.Summary.Unchanged++
	case StatusFailed:
		r.Summary.Failed++
	}
}

func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// HasFailures reports whether any file failed
func (r *Report) HasFailures() bool {
	return r.Summary.Failed > 0
}

// Encode serialises the report as "json" or "yaml".
func (r *Report) Encode(format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(r, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(r)
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}
