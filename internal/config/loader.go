package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
)

// Source is where an effective value came from.
type Source struct {
	Kind   SourceKind
	Name   string // for default
	File   string
	Line   int
	Column int
}

func (s Source) position() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

type LoadResult struct {
	Config  *Config
	Sources map[string]Source // key path -> file position that set it last
	Files   []string          // every file read, includes first
}

func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "compfx", "config.yaml"), nil
}

// Load reads the configuration from the standard location.
func Load() (*Config, error) {
	res, err := LoadWithSources()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadWithSources is Load plus the key positions used by explain and by
// validation errors.
func LoadWithSources() (*LoadResult, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads path and everything it includes. A missing file yields
// the defaults.
func LoadFromPath(path string) (*LoadResult, error) {
	l := &fileLoader{
		visited: make(map[string]bool),
		sources: make(map[string]Source),
	}

	if _, err := os.Stat(path); err == nil {
		if err := l.load(path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg := BuildEffectiveConfig(l.raw)
	if err := cfg.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			if src, ok := l.sources[verr.Path]; ok {
				verr.Source = src
			}
		}
		return nil, err
	}

	return &LoadResult{Config: cfg, Sources: l.sources, Files: l.files}, nil
}

// fileLoader folds a config file and its includes into one RawConfig.
// Included files apply first, so the including file wins.
type fileLoader struct {
	raw     RawConfig
	sources map[string]Source
	files   []string

	visited map[string]bool
	chain   []string // files currently being loaded, outermost first
}

func (l *fileLoader) load(path string) error {
	file := resolveSymlinks(path)
	for _, open := range l.chain {
		if open == file {
			return fmt.Errorf("include cycle detected: %s -> %s", strings.Join(l.chain, " -> "), file)
		}
	}
	if l.visited[file] {
		return nil
	}
	l.visited[file] = true

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("%s: failed to read: %w", file, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: failed to parse yaml: %w", file, err)
	}
	var raw RawConfig
	if err := decodeKnownFields(data, &raw); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	root := rootMapping(&doc)
	l.chain = append(l.chain, file)
	for _, inc := range includeDirectives(root, file) {
		targets, err := includeTargets(file, inc.Value)
		if err != nil {
			return fmt.Errorf("%s: include %q: %w", inc.Source.position(), inc.Value, err)
		}
		for _, target := range targets {
			if err := l.load(target); err != nil {
				return err
			}
		}
	}
	l.chain = l.chain[:len(l.chain)-1]

	l.raw = l.raw.merge(raw)
	recordPositions(root, file, "", l.sources)
	l.files = append(l.files, file)
	return nil
}

func decodeKnownFields(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func resolveSymlinks(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return path
}

// includeTargets resolves an include value relative to the including file.
// A directory expands to its *.yaml and *.yml files in name order.
func includeTargets(from, value string) ([]string, error) {
	if value == "" {
		return nil, fmt.Errorf("path is empty")
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		value = filepath.Join(home, strings.TrimPrefix(value[1:], "/"))
	}
	if !filepath.IsAbs(value) {
		value = filepath.Join(filepath.Dir(from), value)
	}

	info, err := os.Stat(value)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{value}, nil
	}

	entries, err := os.ReadDir(value)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(ent.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(value, ent.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func rootMapping(doc *yaml.Node) *yaml.Node {
	node := doc
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	return node
}

func nodeSource(file string, n *yaml.Node) Source {
	return Source{Kind: SourceFile, File: file, Line: n.Line, Column: n.Column}
}

// recordPositions stores the position of every key under mapping, keyed
// by dotted path.
func recordPositions(mapping *yaml.Node, file, prefix string, out map[string]Source) {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if prefix != "" {
			key = prefix + "." + key
		}
		val := mapping.Content[i+1]
		out[key] = nodeSource(file, val)
		recordPositions(val, file, key, out)
	}
}

type includeDirective struct {
	Value  string
	Source Source
}

// includeDirectives returns the entries of the top-level include key,
// which may be a single path or a list.
func includeDirectives(root *yaml.Node, file string) []includeDirective {
	if root == nil {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "include" {
			continue
		}
		val := root.Content[i+1]
		items := val.Content
		if val.Kind == yaml.ScalarNode {
			items = []*yaml.Node{val}
		}
		var out []includeDirective
		for _, item := range items {
			if item.Kind == yaml.ScalarNode {
				out = append(out, includeDirective{Value: item.Value, Source: nodeSource(file, item)})
			}
		}
		return out
	}
	return nil
}
