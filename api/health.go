package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const healthCheckTimeout = 2 * time.Second

type healthStatus string

const (
	healthy   healthStatus = "healthy"
	unhealthy healthStatus = "unhealthy"
)

type checkResult struct {
	Status  healthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

type healthResponse struct {
	Status     healthStatus           `json:"status"`
	Checks     map[string]checkResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

type namedCheck struct {
	name  string
	check func(ctx context.Context) error
}

type healthChecker struct {
	mu     sync.RWMutex
	checks []namedCheck
	now    func() time.Time
}

func (h *healthChecker) add(name string, check func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, check: check})
	sort.Slice(h.checks, func(i, j int) bool { return h.checks[i].name < h.checks[j].name })
}

func (h *healthChecker) handle(c echo.Context) error {
	h.mu.RLock()
	checks := append([]namedCheck(nil), h.checks...)
	h.mu.RUnlock()

	response := healthResponse{Status: healthy, ReportedAt: h.now()}
	if len(checks) > 0 {
		response.Checks = make(map[string]checkResult, len(checks))
	}
	for _, entry := range checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		start := time.Now()
		err := entry.check(ctx)
		cancel()
		result := checkResult{Status: healthy, Latency: time.Since(start).String()}
		if err != nil {
			result.Status = unhealthy
			result.Message = err.Error()
			response.Status = unhealthy
		}
		response.Checks[entry.name] = result
	}

	code := http.StatusOK
	if response.Status != healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, response)
}
