// Package audit wires the communication audit module: search, exports, and
// compliance reports, plus the event subscription that mirrors portal
// messages into the audit trail.
package audit

import (
	"context"

	"colorgarb_portal_backend/internal/audit/handler"
	"colorgarb_portal_backend/internal/audit/repository"
	"colorgarb_portal_backend/internal/audit/service"
	"colorgarb_portal_backend/internal/events"
	apphttp "colorgarb_portal_backend/internal/http"
	"colorgarb_portal_backend/internal/pdf"
	"colorgarb_portal_backend/internal/scheduler"
	"colorgarb_portal_backend/internal/storage"
	"colorgarb_portal_backend/platform/config"
	"colorgarb_portal_backend/platform/httpkit"
	"colorgarb_portal_backend/platform/logger"
	"colorgarb_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the communication audit bounded context.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule assembles the audit module and registers its event subscriptions.
func NewModule(
	pool *pgxpool.Pool,
	store storage.ObjectStore,
	exporter scheduler.ExportScheduler,
	converter pdf.Converter,
	val *validator.Validator,
	bus events.Bus,
	log *logger.Logger,
	cfg config.ExportConfig,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, repo, store, exporter, converter, bus, log, cfg)

	m := &Module{
		handler: handler.New(svc, val),
		service: svc,
	}

	if bus != nil {
		bus.Subscribe(events.MessageSent{}.EventName(), events.HandlerFunc(m.onMessageSent))
	}
	return m
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "audit"
}

// Service exposes the audit service so delivery paths can append entries and
// the worker can run export jobs.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts the audit routes. The whole surface is staff-only.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/communication-audit")
	group.Use(httpkit.RequireRole(httpkit.RoleStaff))
	group.GET("/search", m.handler.Search)
	group.POST("/export", m.handler.Export)
	group.GET("/export/:jobId/status", m.handler.ExportStatus)
	group.DELETE("/export/:jobId", m.handler.DismissExport)
	group.POST("/compliance-report", m.handler.ComplianceReport)
}

// onMessageSent mirrors a portal message into the immutable audit trail.
func (m *Module) onMessageSent(ctx context.Context, event events.Event) error {
	sent, ok := event.(events.MessageSent)
	if !ok {
		return nil
	}

	orderID := sent.OrderID
	orgID := sent.OrganizationID
	return m.service.Record(ctx, repository.AppendParams{
		OrderID:           &orderID,
		OrganizationID:    &orgID,
		Type:              repository.TypeMessage,
		Direction:         "Outbound",
		Sender:            sent.SenderName,
		Recipient:         sent.RecipientRole,
		Subject:           "Message on order " + sent.OrderNumber,
		BodyExcerpt:       sent.Excerpt,
		DeliveryStatus:    repository.StatusDelivered,
		SentAt:            sent.OccurredAt(),
		ExternalMessageID: sent.MessageID.String(),
	})
}
