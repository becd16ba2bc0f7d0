package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goclaw/reactor/config"
	"github.com/goclaw/reactor/pkg/reactor"
)

// Catalog holds built workflows by name.
type Catalog struct {
	mu        sync.RWMutex
	workflows map[string]*reactor.Workflow
	defs      map[string]*Definition
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		workflows: make(map[string]*reactor.Workflow),
		defs:      make(map[string]*Definition),
	}
}

// LoadCatalog builds every workflow named by cfg: all files in cfg.Dir,
// then cfg.Files.
func LoadCatalog(cfg config.WorkflowsConfig, reg *Registry) (*Catalog, error) {
	var defs []*Definition
	if cfg.Dir != "" {
		loaded, err := LoadDir(cfg.Dir)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	for _, path := range cfg.Files {
		def, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	c := NewCatalog()
	for _, def := range defs {
		if err := c.Add(def, reg); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add builds def and stores it under its name.
func (c *Catalog) Add(def *Definition, reg *Registry) error {
	wf, err := Build(def, reg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.defs[def.Name]; ok {
		return fmt.Errorf("workflow %q defined twice (%s, %s)", def.Name, existing.Source, def.Source)
	}
	c.workflows[def.Name] = wf
	c.defs[def.Name] = def
	return nil
}

// Get returns the named workflow.
func (c *Catalog) Get(name string) (*reactor.Workflow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	wf, ok := c.workflows[name]
	return wf, ok
}

// Definition returns the definition the named workflow was built from.
func (c *Catalog) Definition(name string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[name]
	return def, ok
}

// Names returns the workflow names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.workflows))
	for name := range c.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of workflows.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.workflows)
}
