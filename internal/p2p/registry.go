package p2p

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// nameSpace seeds the generated names of unnamed connection types.
var nameSpace = uuid.MustParse("6f1d2c1e-6a0b-4c55-9b7e-2f7a3e9d1c40")

// Registry holds the connection types by name.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*ConnectionType
	order []string
	env   Env
}

// NewRegistry creates an empty registry whose types share env.
func NewRegistry(env Env) *Registry {
	return &Registry{
		types: make(map[string]*ConnectionType),
		env:   env,
	}
}

// Register builds and stores a connection type. An empty name is replaced by
// one derived from the endpoints, so registering the same unnamed pair twice
// collides.
func (r *Registry) Register(cfg Config) (*ConnectionType, error) {
	if cfg.Name == "" {
		cfg.Name = GeneratedName(cfg)
	}

	ct, err := NewConnectionType(cfg, r.env)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[ct.Name()]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateConnectionType, ct.Name())
	}
	r.types[ct.Name()] = ct
	r.order = append(r.order, ct.Name())

	r.env.logger().Debug("registered connection type", "type", ct.Name(), "desc", ct.Desc())
	return ct, nil
}

// GeneratedName returns the name Register gives an unnamed config.
func GeneratedName(cfg Config) string {
	id := uuid.NewSHA1(nameSpace, []byte(cfg.normalize().fingerprint()))
	return "p2p_" + id.String()[:8]
}

// Get returns the type registered under name.
func (r *Registry) Get(name string) (*ConnectionType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.types[name]
	return ct, ok
}

// All returns the types in registration order.
func (r *Registry) All() []*ConnectionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ConnectionType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// definitions is the YAML document accepted by LoadYAML.
type definitions struct {
	ConnectionTypes []Config `yaml:"connection_types"`
}

// LoadYAML registers every type listed under connection_types in data.
// Registration stops at the first error.
func (r *Registry) LoadYAML(data []byte) ([]*ConnectionType, error) {
	var defs definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("p2p: failed to parse connection types: %w", err)
	}

	registered := make([]*ConnectionType, 0, len(defs.ConnectionTypes))
	for _, cfg := range defs.ConnectionTypes {
		ct, err := r.Register(cfg)
		if err != nil {
			return registered, err
		}
		registered = append(registered, ct)
	}
	return registered, nil
}

// LoadFile is LoadYAML on the contents of path.
func (r *Registry) LoadFile(path string) ([]*ConnectionType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("p2p: failed to read %s: %w", path, err)
	}
	return r.LoadYAML(data)
}

// Reload registers the types in path whose names are not registered yet and
// returns them. Registered types are never replaced or removed.
func (r *Registry) Reload(path string) ([]*ConnectionType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("p2p: failed to read %s: %w", path, err)
	}

	var defs definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("p2p: failed to parse connection types: %w", err)
	}

	var added []*ConnectionType
	for _, cfg := range defs.ConnectionTypes {
		if cfg.Name == "" {
			cfg.Name = GeneratedName(cfg)
		}
		if _, ok := r.Get(cfg.Name); ok {
			continue
		}
		ct, err := r.Register(cfg)
		if errors.Is(err, ErrDuplicateConnectionType) {
			continue
		}
		if err != nil {
			return added, err
		}
		added = append(added, ct)
	}
	return added, nil
}
