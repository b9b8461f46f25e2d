package logx

import (
	"os"

	"go.uber.org/zap"
)

// New builds the service logger. LOG_LEVEL=debug switches to the
// development config; everything else gets production JSON output.
func New(service string) *zap.Logger {
	var lg *zap.Logger
	var err error
	if os.Getenv("LOG_LEVEL") == "debug" {
		lg, err = zap.NewDevelopment()
	} else {
		lg, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return lg.With(zap.String("service", service))
}
