package api

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/goliatone/go-integrations/core"
)

const (
	metricHTTPRequests = "integrations.http.requests"
	metricHTTPDuration = "integrations.http.duration_ms"
)

// requestLogger renders errors through the echo error handler before logging
// so the recorded status is the one the client saw.
func requestLogger(logger core.Logger, metrics core.MetricsRecorder) echo.MiddlewareFunc {
	observer := core.NewObserver("integrations.http", logger, metrics)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			ctx := req.Context()
			tags := map[string]string{
				"method": req.Method,
				"route":  route,
				"status": strconv.Itoa(res.Status),
			}
			observer.Counter(ctx, metricHTTPRequests, 1, tags)
			observer.Histogram(ctx, metricHTTPDuration, float64(elapsed.Milliseconds()), tags)

			fields := map[string]any{
				"request_id":    res.Header().Get(echo.HeaderXRequestID),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"route":         route,
				"status":        res.Status,
				"remote_ip":     c.RealIP(),
				"response_time": elapsed.String(),
				"response_size": res.Size,
			}
			if res.Status >= 500 {
				observer.Warn(ctx, "request", fields)
				return nil
			}
			observer.Info(ctx, "request", fields)
			return nil
		}
	}
}
