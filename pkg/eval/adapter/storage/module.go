package storage

import (
	"context"

	"go.uber.org/fx"

	coreConfig "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// ProvidersParams collects every StorageProvider registered by the adapter modules.
type ProvidersParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
}

// NewProviderMap keys the collected providers by storage type.
func NewProviderMap(p ProvidersParams) map[string]StorageProvider {
	m := make(map[string]StorageProvider, len(p.Providers))
	for _, provider := range p.Providers {
		m[provider.Type()] = provider
	}
	return m
}

// NewResolverWithLifecycle builds the ConnectionResolver and closes all connections on stop.
func NewResolverWithLifecycle(lc fx.Lifecycle, providers map[string]StorageProvider, cfg *coreConfig.Config) StorageConnectionResolver {
	r := NewConnectionResolver(providers, cfg)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Debugf("Closing storage connections.")
			return r.CloseAll()
		},
	})
	return r
}

// Module provides the storage connection resolver. Adapter modules (local, gcs, hf)
// contribute their providers to the "storage_providers" group.
var Module = fx.Options(
	fx.Provide(NewProviderMap),
	fx.Provide(NewResolverWithLifecycle),
)
