package middleware

import (
	"strconv"
	"time"

	"referral-ledger/monitoring"

	"github.com/gofiber/fiber/v2"
)

// HTTPMetrics records request counts and latency labelled by route pattern, not raw path.
func HTTPMetrics(m *monitoring.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.HTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(status), time.Since(start))
		return err
	}
}
