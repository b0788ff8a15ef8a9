package middleware

import (
	"log/slog"
	"time"

	"github.com/miladsoleymani/idflow/core"
)

// Logging returns middleware that logs handling duration and errors.
// Successful deliveries are logged at debug level.
func Logging(log *slog.Logger) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			if err != nil {
				log.Error("Handler failed",
					"id", c.ID(), "topic", c.Topic(), "elapsed", elapsed, "err", err)
			} else {
				log.Debug("Handled delivery",
					"id", c.ID(), "topic", c.Topic(), "elapsed", elapsed)
			}
			return err
		}
	}
}
