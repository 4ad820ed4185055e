package command

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/Alia5/aotkit/metadata"
)

// Logging returns a middleware factory that logs each dispatch at debug level
// and failures at error level.
func Logging(logger *slog.Logger) MiddlewareFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func() Middleware {
		return MiddlewareFunc(func(ctx context.Context, cmd any, next Next) (any, error) {
			name := metadata.TypeName(reflect.TypeOf(cmd))
			start := time.Now()
			res, err := next(ctx)
			if err != nil {
				logger.Error("command failed", "command", name, "duration", time.Since(start), "error", err)
				return res, err
			}
			logger.Debug("command executed", "command", name, "duration", time.Since(start))
			return res, nil
		})
	}
}
