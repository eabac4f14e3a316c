package app

import "github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"

// Process exit statuses returned by ExitCode.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// ExitCode maps the error returned by RunApplication to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case exception.IsErrorOfType(err, exception.InvalidConfigurationException),
		exception.IsErrorOfType(err, exception.UnknownResolutionException):
		return ExitUsage
	case exception.IsErrorOfType(err, "context.Canceled"):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
