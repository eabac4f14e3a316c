package hf

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
)

// Module contributes the Hugging Face Hub StorageProvider to the "storage_providers" group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewHFProvider,
		fx.As(new(storageAdapter.StorageProvider)),
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
