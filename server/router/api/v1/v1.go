// Package v1 exposes the chat orchestrator over HTTP.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatkit/internal/profile"
	"github.com/hrygo/chatkit/internal/observability"
	"github.com/hrygo/chatkit/server/middleware"
	"github.com/hrygo/chatkit/server/service/chat"
)

type APIV1Service struct {
	Profile *profile.Profile
	Chat    *chat.Service
	Metrics *observability.Metrics

	rateLimiter *middleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, chatService *chat.Service, metrics *observability.Metrics) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		Chat:        chatService,
		Metrics:     metrics,
		rateLimiter: middleware.NewRateLimiter(profile.RateLimitRPS, profile.RateLimitBurst),
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/sessions", s.CreateSession)
	g.GET("/sessions/:id", s.GetSession)
	g.DELETE("/sessions/:id", s.ClearSession)
	g.POST("/sessions/:id/messages", s.SendMessage)
	g.POST("/sessions/:id/cancel", s.CancelRequest)
	g.DELETE("/sessions/:id/requests/:requestId", s.RemoveRequest)
	g.POST("/sessions/:id/transfer", s.TransferSession)

	g.GET("/history", s.GetHistory)
	g.DELETE("/history/:id", s.RemoveHistoryEntry)
	g.DELETE("/history", s.ClearHistory)

	g.GET("/metrics/overview", s.GetMetricsOverview)
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

// GetMetricsOverview reports invocation counters.
// GET /api/v1/metrics/overview
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	if s.Metrics == nil {
		return errorJSON(c, http.StatusNotFound, "metrics disabled")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total_requests":     s.Metrics.RequestTotal(),
		"failed_requests":    s.Metrics.RequestFailed(),
		"cancelled_requests": s.Metrics.RequestCancelled(),
		"filtered_requests":  s.Metrics.RequestFiltered(),
		"avg_duration_ms":    s.Metrics.AverageDuration().Milliseconds(),
	})
}
