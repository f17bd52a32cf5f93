package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource reads configuration from a YAML file on every Load, so edits
// are picked up by the next reload.
//
// Example:
//
//	requests_per_target: 10
//	report_rows: 20
//	targets: |
//	  https://a.example
//	  https://b.example
//
// targets may also be a YAML sequence.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the YAML file at path. The file is not
// read until Load.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// fileConfig maps the YAML document.
type fileConfig struct {
	RequestsPerTarget int        `yaml:"requests_per_target"`
	ReportRows        int        `yaml:"report_rows"`
	Targets           TargetList `yaml:"targets"`
}

// TargetList accepts either a newline separated block scalar or a sequence
// of URLs.
type TargetList []string

// UnmarshalYAML implements yaml.Unmarshaler for TargetList.
func (l *TargetList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = ParseTargetList(s)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		*l = Dedupe(items)
		return nil
	default:
		return fmt.Errorf("line %d: targets must be a string or a list", node.Line)
	}
}

// Load implements Source.
func (f *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return Parse(data)
}

// Location implements Source.
func (f *FileSource) Location() string { return f.path }

// Close implements Source.
func (f *FileSource) Close() error { return nil }

// Parse parses a YAML configuration document.
func Parse(data []byte) (*Snapshot, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	// An empty or half-written file must not read as "no targets"
	if cfg.Targets == nil {
		return nil, errors.New("no targets key in document")
	}

	s := &Snapshot{
		RequestsPerTarget: cfg.RequestsPerTarget,
		ReportRows:        cfg.ReportRows,
		Targets:           cfg.Targets,
	}
	s.applyDefaults()
	return s, nil
}
