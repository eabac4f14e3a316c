package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// NewResolverWithLifecycle builds the resolver and closes all connections on stop.
func NewResolverWithLifecycle(lc fx.Lifecycle, p ResolverParams) database.DBConnectionResolver {
	r := NewGormDBConnectionResolver(p)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Debugf("Closing database connections.")
			return r.CloseAll()
		},
	})
	return r
}

// Module provides the DB connection resolver. Dialect modules (sqlite, postgres, mysql)
// contribute their providers to the "db_providers" group.
var Module = fx.Options(
	fx.Provide(NewResolverWithLifecycle),
)
