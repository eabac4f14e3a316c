package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/config"
	coreAdapter "github.com/tigerroll/pvtruth/pkg/eval/core/adapter"
	coreConfig "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// ConnectionResolver implements StorageConnectionResolver by dispatching each
// named connection to the provider registered for its configured type.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *coreConfig.Config
}

// NewConnectionResolver creates a resolver over providers keyed by storage type.
func NewConnectionResolver(providers map[string]StorageProvider, cfg *coreConfig.Config) *ConnectionResolver {
	return &ConnectionResolver{
		providers: providers,
		cfg:       cfg,
	}
}

// ResolveConnection resolves a generic resource connection by name.
func (r *ConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// ResolveStorageConnection resolves a StorageConnection by the given name.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	if name == "" {
		return nil, fmt.Errorf("storage connection name must not be empty")
	}
	namedCfg, err := storageConfig.Lookup(r.cfg.PVTruth.AdapterConfigs, name)
	if err != nil {
		return nil, err
	}

	provider, ok := r.providers[namedCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", namedCfg.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, namedCfg.Type, err)
	}
	logger.Debugf("Resolved storage connection '%s' (type '%s').", name, namedCfg.Type)
	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var result *multierror.Error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
