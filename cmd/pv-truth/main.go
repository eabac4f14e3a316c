package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "embed"

	"github.com/tigerroll/pvtruth/internal/app"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// embeddedConfig is the default configuration; ${VAR} placeholders and PVTRUTH_* variables override it.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

var (
	testsetPath  = flag.String("testset", "", "Path to the testset CSV (columns pv_id,timestamp)")
	horizonHours = flag.Int("horizon", -1, "Forecast horizon in hours (default: truth.horizon_hours, 48)")
	folder       = flag.String("folder", "", "Resolution folder, 30_minutely or 5_minutely (default: truth.folder_name)")
	envFile      = flag.String("config-env", "", "Path to a .env file (default: $ENV_FILE_PATH or .env)")
)

// dbAdaptors returns the database adapters to register, from DB_ADAPTORS or all of them.
func dbAdaptors() []string {
	adaptors := os.Getenv("DB_ADAPTORS")
	if adaptors == "" {
		adaptors = "sqlite,postgres,mysql"
	}
	var names []string
	for _, name := range strings.Split(adaptors, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Cancelling the run...", sig)
		cancel()
	}()

	envFilePath := *envFile
	if envFilePath == "" {
		envFilePath = os.Getenv("ENV_FILE_PATH")
	}
	if envFilePath == "" {
		envFilePath = ".env"
	}

	dbOptions, unknown := app.DBProviderOptions(dbAdaptors())
	for _, name := range unknown {
		logger.Warnf("DB adaptor '%s' is not supported. Skipping.", name)
	}

	opts := app.RunOptions{
		TestsetPath:  *testsetPath,
		HorizonHours: *horizonHours,
		Folder:       *folder,
	}
	err := app.RunApplication(ctx, envFilePath, embeddedConfig, opts, dbOptions)
	code := app.ExitCode(err)
	if err != nil {
		logger.Errorf("pv-truth failed: %s", exception.ExtractErrorMessage(err))
		if code == app.ExitUsage {
			fmt.Fprintln(os.Stderr, "Run with -h for usage.")
		}
	}
	os.Exit(code)
}
