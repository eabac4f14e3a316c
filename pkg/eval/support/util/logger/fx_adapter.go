package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter implements fxevent.Logger on top of this package.
// Wiring chatter goes to DEBUG; failures go to ERROR.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new instance of FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent logs events from fx.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			Errorf("OnStart hook failed: %s: %v", shortFunctionName(e.FunctionName), e.Err)
			return
		}
		Debugf("OnStart hook executed: %s (%s)", shortFunctionName(e.FunctionName), e.Runtime)
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			Errorf("OnStop hook failed: %s: %v", shortFunctionName(e.FunctionName), e.Err)
			return
		}
		Debugf("OnStop hook executed: %s", shortFunctionName(e.FunctionName))
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("Supply failed for %s: %v", e.TypeName, e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("Provide failed for %s: %v", shortFunctionName(e.ConstructorName), e.Err)
			return
		}
		for _, t := range e.OutputTypeNames {
			Debugf("Provided: %s", t)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("Invoke failed: %s: %v", shortFunctionName(e.FunctionName), e.Err)
		}
	case *fxevent.Stopping:
		Debugf("Stopping on signal: %s", e.Signal)
	case *fxevent.RollingBack:
		Errorf("Start failed, rolling back: %v", e.StartErr)
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("Start failed: %v", e.Err)
			return
		}
		Debugf("Application started.")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("Logger initialization failed: %v", e.Err)
		}
	}
}

// shortFunctionName strips anonymous function suffixes such as ".func1".
func shortFunctionName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
