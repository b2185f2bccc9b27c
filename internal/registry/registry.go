// Package registry maintains the file-system JSON registry of known
// translation-memory instances. It is purely a discovery aid for the CLI
// and never affects query semantics.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rmraya/hybridtm/internal/config"
)

const fileName = "instances.json"

// Instance describes one registered translation memory.
type Instance struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry is the named-instance index.
type Registry struct {
	Instances map[string]*Instance `json:"instances"`

	path string
}

// Load reads the registry from the config directory. A missing file
// yields an empty registry.
func Load() (*Registry, error) {
	return LoadFrom(filepath.Join(config.Dir(), fileName))
}

// LoadFrom reads the registry from an explicit path.
func LoadFrom(path string) (*Registry, error) {
	r := &Registry{
		Instances: make(map[string]*Instance),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if r.Instances == nil {
		r.Instances = make(map[string]*Instance)
	}
	return r, nil
}

// Register records an instance and persists the registry.
func (r *Registry) Register(name, path, model string) error {
	if name == "" {
		return fmt.Errorf("instance name is required")
	}
	existing := r.Instances[name]
	inst := &Instance{Name: name, Path: path, Model: model, CreatedAt: time.Now().UTC()}
	if existing != nil {
		inst.CreatedAt = existing.CreatedAt
	}
	r.Instances[name] = inst
	return r.save()
}

// Remove deletes an instance record. Returns false when absent.
func (r *Registry) Remove(name string) (bool, error) {
	if _, ok := r.Instances[name]; !ok {
		return false, nil
	}
	delete(r.Instances, name)
	return true, r.save()
}

// Resolve returns the registered instance with the given name.
func (r *Registry) Resolve(name string) (*Instance, bool) {
	inst, ok := r.Instances[name]
	return inst, ok
}

// List returns all instances sorted by name.
func (r *Registry) List() []*Instance {
	out := make([]*Instance, 0, len(r.Instances))
	for _, inst := range r.Instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return os.WriteFile(r.path, data, 0o644)
}
