package dag

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ErrPipelineNotFound is returned by loaders that do not know a pipeline.
var ErrPipelineNotFound = errors.New("pipeline not found")

// PipelineLoader loads pipeline definitions by name.
type PipelineLoader interface {
	Load(name string) (*Pipeline, error)
}

// FilePipelineLoader loads pipelines from YAML files on disk.
type FilePipelineLoader struct {
	dirs []string
}

// NewFilePipelineLoader searches dirs, recursively, for {name}.yaml or {name}.yml.
func NewFilePipelineLoader(dirs ...string) *FilePipelineLoader {
	return &FilePipelineLoader{dirs: dirs}
}

// Load returns the first matching file. A file that exists but does not
// parse is an error rather than a miss.
func (l *FilePipelineLoader) Load(name string) (*Pipeline, error) {
	for _, dir := range l.dirs {
		var found string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || found != "" {
				return nil
			}
			base := filepath.Base(path)
			if base == name+".yaml" || base == name+".yml" {
				found = path
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dag: searching %s: %w", dir, err)
		}
		if found != "" {
			return LoadPipelineFile(found)
		}
	}
	return nil, fmt.Errorf("dag: %w: %q in %v", ErrPipelineNotFound, name, l.dirs)
}

// List returns the names of all pipeline files under the loader's dirs.
func (l *FilePipelineLoader) List() ([]string, error) {
	var names []string
	for _, dir := range l.dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := filepath.Ext(path)
			if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
				return nil
			}
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dag: listing %s: %w", dir, err)
		}
	}
	slices.Sort(names)
	return names, nil
}

// LoadPipelineFile parses and validates one pipeline file.
func LoadPipelineFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("dag: parsing %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("dag: %s: %w", path, err)
	}
	return &p, nil
}

// ChainLoader tries each loader in order, so earlier loaders shadow later
// ones. Only ErrPipelineNotFound moves on to the next loader; any other
// error, such as a file that does not parse, is returned as is.
type ChainLoader []PipelineLoader

// Load returns the first pipeline any loader finds.
func (c ChainLoader) Load(name string) (*Pipeline, error) {
	for _, l := range c {
		p, err := l.Load(name)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrPipelineNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("dag: %w: %q", ErrPipelineNotFound, name)
}

// ResolvePipeline flattens p and its includes into a Graph. Includes reached
// twice through different branches are merged once. Any other repeated
// operation is an error.
func ResolvePipeline(p *Pipeline, loader PipelineLoader) (*Graph, error) {
	g := NewGraph(p.Name)
	stack := make(map[string]bool)
	resolved := make(map[string]bool)
	if err := resolveInto(g, p, loader, stack, resolved); err != nil {
		return nil, err
	}
	return g, nil
}

func resolveInto(g *Graph, p *Pipeline, loader PipelineLoader, stack, resolved map[string]bool) error {
	if stack[p.Name] {
		return fmt.Errorf("dag: circular include detected for pipeline %q", p.Name)
	}
	stack[p.Name] = true
	defer delete(stack, p.Name)

	if err := p.Validate(); err != nil {
		return err
	}

	for _, includeName := range p.Includes {
		if resolved[includeName] {
			continue
		}
		if loader == nil {
			return fmt.Errorf("dag: pipeline %q includes %q but no loader is configured", p.Name, includeName)
		}
		sub, err := loader.Load(includeName)
		if err != nil {
			return fmt.Errorf("dag: loading include %q: %w", includeName, err)
		}
		if err := resolveInto(g, sub, loader, stack, resolved); err != nil {
			return err
		}
	}

	for _, def := range p.Stages {
		spec := StageSpec{Op: def.Op, Source: def.Source, MinBatch: def.MinBatch, MaxBatch: def.MaxBatch}
		if err := g.AddStage(spec); err != nil {
			return fmt.Errorf("%w in pipeline %q", err, p.Name)
		}
		for _, dep := range def.DependsOn {
			g.AddEdge(dep, def.Op)
		}
	}

	resolved[p.Name] = true
	return nil
}
