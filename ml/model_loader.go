package ml

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a model. An empty dir selects the artifact packaged with
// the model; otherwise the artifact is read from dir.
type Factory func(dir string) (Model, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a model type available to LoadModel under its qualified
// name. Model packages call it from init; importing the package is enough to
// make the model loadable. Register panics on a duplicate or invalid name.
func Register(qualifiedName string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if !IsQualifiedName(qualifiedName) {
		panic(fmt.Sprintf("ml: invalid qualified name %q", qualifiedName))
	}
	if factory == nil {
		panic("ml: Register factory is nil for " + qualifiedName)
	}
	if _, dup := factories[qualifiedName]; dup {
		panic("ml: Register called twice for " + qualifiedName)
	}
	factories[qualifiedName] = factory
}

// Registered returns the sorted qualified names of all registered models.
func Registered() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadModel constructs the registered model named qualifiedName.
func LoadModel(qualifiedName, dir string) (Model, error) {
	factoriesMu.RLock()
	factory, ok := factories[qualifiedName]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported model %q", qualifiedName)
	}
	model, err := factory(dir)
	if err != nil {
		return nil, err
	}
	if model.QualifiedName() != qualifiedName {
		return nil, fmt.Errorf("factory for %q built model %q", qualifiedName, model.QualifiedName())
	}
	return model, nil
}
