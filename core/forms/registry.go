// Package forms holds the declarative catalogue of intake forms driven by the wizard controller.
package forms

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/wizard"
)

var ErrUnknownForm = errors.New("unknown form")

// Registry maps form names to their schemas.
type Registry struct {
	schemas map[string]*wizard.Schema
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the catalogue embedded in the binary.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "schemas")
		if err != nil {
			defaultErr = errors.Wrap(err, "opening embedded schemas")
			return
		}
		defaultReg, defaultErr = Load(sub)
	})
	return defaultReg, defaultErr
}

// MustDefault is Default for callers that cannot run without the catalogue.
func MustDefault() *Registry {
	reg, err := Default()
	if err != nil {
		panic(err)
	}
	return reg
}

// Load parses every YAML document under fsys into a validated schema.
func Load(fsys fs.FS) (*Registry, error) {
	reg := &Registry{schemas: make(map[string]*wizard.Schema)}
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isSchemaFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return errors.Wrapf(err, "forms: reading %s", path)
		}
		if strings.TrimSpace(string(data)) == "" {
			return errors.Errorf("forms: %s is empty", path)
		}

		schema := new(wizard.Schema)
		if err := yaml.Unmarshal(data, schema); err != nil {
			return errors.Wrapf(err, "forms: parsing %s", path)
		}
		if err := schema.Validate(); err != nil {
			return errors.Wrapf(err, "forms: %s", path)
		}
		if _, exists := reg.schemas[schema.Name]; exists {
			return errors.Errorf("forms: duplicate form %q (file %s)", schema.Name, path)
		}
		reg.schemas[schema.Name] = schema
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Get returns the named schema, or ErrUnknownForm with a suggestion when the name is close to a known one.
func (r *Registry) Get(name string) (*wizard.Schema, error) {
	if schema, ok := r.schemas[name]; ok {
		return schema, nil
	}
	return nil, errors.Wrapf(ErrUnknownForm, "%q%s", name, core.DidYouMean(name, r.Names()))
}

// Names returns the form names in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the schemas sorted by name.
func (r *Registry) List() []*wizard.Schema {
	names := r.Names()
	schemas := make([]*wizard.Schema, len(names))
	for i, name := range names {
		schemas[i] = r.schemas[name]
	}
	return schemas
}
