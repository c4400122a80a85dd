package logger

import (
	"go.uber.org/zap"
)

var Log *zap.Logger = zap.NewNop()

// Init replaces the global logger. Debug mode switches to the development
// config with human-readable output.
func Init(debug bool) {
	var err error
	if debug {
		Log, err = zap.NewDevelopment()
	} else {
		Log, err = zap.NewProduction()
	}
	if err != nil {
		Log = zap.NewNop()
	}
}

func Sync() {
	_ = Log.Sync()
}
