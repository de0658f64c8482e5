package routine

import (
	"errors"
	"slices"

	"github.com/kbukum/crossmatch/dag"
	apperrors "github.com/kbukum/crossmatch/errors"
)

// Catalog finds routines by name. A YAML file shadows the built-in
// routine of the same name.
type Catalog struct {
	builtin *dag.Registry
	files   *dag.FilePipelineLoader
	loader  dag.ChainLoader
}

// NewCatalog creates a catalog over the built-in routines and the YAML
// files under dirs.
func NewCatalog(dirs ...string) *Catalog {
	c := &Catalog{builtin: Builtin()}
	if len(dirs) > 0 {
		c.files = dag.NewFilePipelineLoader(dirs...)
		c.loader = append(c.loader, c.files)
	}
	c.loader = append(c.loader, c.builtin)
	return c
}

// Load returns the named routine. Includes are loaded the same way.
func (c *Catalog) Load(name string) (*dag.Pipeline, error) {
	p, err := c.loader.Load(name)
	if errors.Is(err, dag.ErrPipelineNotFound) {
		return nil, apperrors.NotFound("routine", name).WithCause(err)
	}
	return p, err
}

// List returns every routine name, sorted.
func (c *Catalog) List() ([]string, error) {
	names := c.builtin.List()
	if c.files != nil {
		files, err := c.files.List()
		if err != nil {
			return nil, err
		}
		for _, n := range files {
			if !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
		slices.Sort(names)
	}
	return names, nil
}

// Graph loads the named routine and resolves it with its includes.
func (c *Catalog) Graph(name string) (*dag.Graph, error) {
	p, err := c.Load(name)
	if err != nil {
		return nil, err
	}
	g, err := dag.ResolvePipeline(p, c)
	if err != nil {
		return nil, apperrors.GraphInvalid(name, err.Error()).WithCause(err)
	}
	return g, nil
}

// Levels returns the stages of the named routine grouped by depth.
func (c *Catalog) Levels(name string) ([][]string, error) {
	g, err := c.Graph(name)
	if err != nil {
		return nil, err
	}
	levels, err := dag.BuildLevels(g)
	if err != nil {
		return nil, apperrors.GraphInvalid(name, err.Error()).WithCause(err)
	}
	return levels, nil
}
