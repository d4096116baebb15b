package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/securecheckio/rules-engine/pkg/rules"
)

// Source provides rule lists to the engine wiring.
type Source interface {
	// LoadRules loads all rules from the source.
	LoadRules(ctx context.Context) ([]*rules.Rule, error)
}

// FileSource loads rules from YAML files on disk.
//
// The path may be a single file or a directory; directories are read
// non-recursively and files are processed in name order so that load order
// (and therefore equal-priority tie-breaking) is reproducible. Each file
// holds a document of the form:
//
//	rules:
//	  - id: sql-injection
//	    content: ["DROP", "TABLE"]
//	    pcre: ['DROP\s+TABLE']
//	    action: block
//	    severity: critical
type FileSource struct {
	path   string
	logger *slog.Logger
}

// ruleDocument is the top-level YAML shape of a rule file.
type ruleDocument struct {
	Rules []*rules.Rule `yaml:"rules"`
}

// NewFileSource creates a file-based rule source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger.With("component", "rules.source.file"),
	}
}

// LoadRules loads all rules from the configured path.
func (s *FileSource) LoadRules(ctx context.Context) ([]*rules.Rule, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %q: %w", s.path, err)
	}

	var list []*rules.Rule
	if info.IsDir() {
		list, err = s.loadDirectory(ctx)
	} else {
		list, err = s.loadFile(s.path)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("loaded rules from source",
		"path", s.path,
		"rule_count", len(list),
	)
	return list, nil
}

// loadDirectory loads every .yaml/.yml file in the directory, in name order.
func (s *FileSource) loadDirectory(ctx context.Context) ([]*rules.Rule, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", s.path, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var list []*rules.Rule
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileRules, err := s.loadFile(filepath.Join(s.path, name))
		if err != nil {
			return nil, err
		}
		list = append(list, fileRules...)
	}
	return list, nil
}

// loadFile parses one YAML rule file.
func (s *FileSource) loadFile(path string) ([]*rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %q: %w", path, err)
	}

	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %q: %w", path, err)
	}

	for _, r := range doc.Rules {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule file %q: %w", path, err)
		}
	}

	s.logger.Debug("parsed rule file", "path", path, "rule_count", len(doc.Rules))
	return doc.Rules, nil
}
