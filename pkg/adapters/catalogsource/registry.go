// Package catalogsource loads schema catalogs from files and live databases.
// Each source type registers itself from an init function; callers import the
// source packages they need for side effects and open sources by type name.
package catalogsource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
)

// Source produces a fresh catalog on every Load.
// Each implementation owns its connection and must be closed when done.
type Source interface {
	Load(ctx context.Context) (*catalog.Catalog, error)
	Close() error
}

// SourceInfo describes a registered source type.
type SourceInfo struct {
	Type        string `json:"type"`         // "file", "postgres", "sqlserver"
	DisplayName string `json:"display_name"` // "YAML file", "PostgreSQL"
	Description string `json:"description"`
}

// Factory builds a source from a generic config map.
type Factory func(ctx context.Context, config map[string]any, logger *zap.Logger) (Source, error)

// Registration contains info + factory for one source type.
type Registration struct {
	Info    SourceInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each source's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredSources returns info for all registered sources, sorted by type.
func RegisteredSources() []SourceInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]SourceInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a source type.
// Returns nil if type is not registered.
func GetFactory(sourceType string) Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[sourceType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a source type is available.
func IsRegistered(sourceType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[sourceType]
	return ok
}

// Open creates a source of the given type.
func Open(ctx context.Context, sourceType string, config map[string]any, logger *zap.Logger) (Source, error) {
	factory := GetFactory(sourceType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported catalog source type: %s", sourceType)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return factory(ctx, config, logger)
}

// Load opens a source, loads one catalog and closes the source.
func Load(ctx context.Context, sourceType string, config map[string]any, logger *zap.Logger) (*catalog.Catalog, error) {
	src, err := Open(ctx, sourceType, config, logger)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	cat, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s catalog: %w", sourceType, err)
	}
	return cat, nil
}
