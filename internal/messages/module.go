// Package messages wires the order messaging module.
package messages

import (
	"colorgarb_portal_backend/internal/events"
	apphttp "colorgarb_portal_backend/internal/http"
	"colorgarb_portal_backend/internal/messages/handler"
	"colorgarb_portal_backend/internal/messages/repository"
	"colorgarb_portal_backend/internal/messages/service"
	"colorgarb_portal_backend/platform/logger"
	"colorgarb_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Module is the messaging bounded context.
type Module struct {
	handler *handler.Handler
}

// NewModule assembles the messaging module.
func NewModule(pool *pgxpool.Pool, rdb *redis.Client, val *validator.Validator, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	history := repository.NewSearchHistory(rdb)
	svc := service.New(repo, history, bus, log)
	return &Module{handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "messages"
}

// RegisterRoutes mounts the messaging routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	thread := ctx.Protected.Group("/orders/:id/messages")
	thread.GET("", m.handler.Thread)
	thread.POST("", m.handler.Send)
	thread.POST("/:messageId/read", m.handler.MarkRead)
	thread.GET("/search", m.handler.Search)
	thread.GET("/search-history", m.handler.SearchHistory)
	thread.DELETE("/search-history", m.handler.ClearSearchHistory)
}
