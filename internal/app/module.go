package app

import (
	"go.uber.org/fx"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm/mysql"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm/postgres"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm/sqlite"
)

// DBProviderModules maps database adapter names to the fx modules contributing their providers.
var DBProviderModules = map[string]fx.Option{
	"sqlite":   sqlite.Module,
	"postgres": postgres.Module,
	"mysql":    mysql.Module,
}

// DBProviderOptions selects the provider modules for names and returns the names it did not recognise.
func DBProviderOptions(names []string) ([]fx.Option, []string) {
	options := make([]fx.Option, 0, len(names))
	var unknown []string
	for _, name := range names {
		module, ok := DBProviderModules[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		options = append(options, module)
	}
	return options, unknown
}

// Module provides the Runner.
var Module = fx.Options(
	fx.Provide(NewRunner),
)
