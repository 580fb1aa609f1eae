// Package orders wires the order timeline module: repository, service, and
// HTTP routes for the admin order workspace and the client timeline view.
package orders

import (
	"colorgarb_portal_backend/internal/events"
	apphttp "colorgarb_portal_backend/internal/http"
	"colorgarb_portal_backend/internal/orders/handler"
	"colorgarb_portal_backend/internal/orders/repository"
	"colorgarb_portal_backend/internal/orders/service"
	"colorgarb_portal_backend/platform/logger"
	"colorgarb_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the orders bounded context.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule assembles the orders module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "orders"
}

// Service exposes the order service for other modules and workers.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts the order routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/orders/:id/timeline", m.handler.Timeline)

	ctx.Admin.GET("/orders", m.handler.List)
	ctx.Admin.PATCH("/orders/:id/stage", m.handler.UpdateStage)
	ctx.Admin.POST("/orders/bulk-update", m.handler.BulkUpdate)
}
