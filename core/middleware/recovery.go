package middleware

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/miladsoleymani/idflow/core"
)

// Recovery returns middleware that recovers from panics in handlers,
// logs the stack trace, and returns the panic as an error.
func Recovery(log *slog.Logger) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					log.Error("Recovered handler panic",
						"id", c.ID(), "panic", r, "stack", string(buf[:n]))
					err = fmt.Errorf("idflow: panic recovered: %v", r)
				}
			}()
			return next(c)
		}
	}
}
