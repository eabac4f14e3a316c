// Package app wires the pv-truth command with fx and runs one truth retrieval.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/gcs"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/hf"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/local"
	"github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/infrastructure/metrics"
	"github.com/tigerroll/pvtruth/pkg/eval/pv"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// RunApplication builds the fx application, performs one run and shuts down.
// A negative HorizonHours or an empty Folder in opts is taken from the configuration.
// The run completes before the stop hooks close its connections; cancelling appCtx
// interrupts it and the returned error wraps context.Canceled.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, opts RunOptions, dbProviderOptions []fx.Option) error {
	var (
		runner *Runner
		cfg    *config.Config
	)

	app := fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		logger.Module,
		config.Module,
		metrics.Module,

		storage.Module,
		local.Module,
		gcs.Module,
		hf.Module,

		fx.Options(dbProviderOptions...),
		gorm.Module,

		pv.Module,
		Module,

		fx.Populate(&runner, &cfg),
	)

	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(appCtx, app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := runOnce(appCtx, runner, ResolveOptions(opts, cfg))
	if ctxErr := appCtx.Err(); ctxErr != nil {
		runErr = exception.NewEvalErrorf(moduleName, "run interrupted", errors.Join(ctxErr, runErr))
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Failed to stop application: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func runOnce(ctx context.Context, runner *Runner, opts RunOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewEvalErrorf(moduleName, "panic recovered in truth run: %s", fmt.Sprint(r))
		}
	}()
	_, err = runner.Run(ctx, opts)
	return err
}

// ResolveOptions fills unset command line options from the truth configuration.
func ResolveOptions(opts RunOptions, cfg *config.Config) RunOptions {
	if opts.HorizonHours < 0 {
		opts.HorizonHours = cfg.PVTruth.Truth.HorizonHours
	}
	if opts.Folder == "" {
		opts.Folder = cfg.PVTruth.Truth.FolderName
	}
	return opts
}
