package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
)

// Metrics records request counts, latency and in-flight requests.
// The route pattern is used as the path label to keep cardinality bounded.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		metrics.IncInFlight()
		defer metrics.DecInFlight()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		path := c.Route().Path
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Method(), path, strconv.Itoa(status), time.Since(start))
		return err
	}
}
