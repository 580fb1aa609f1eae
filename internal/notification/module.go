// Package notification delivers order updates to portal users. It subscribes
// to domain events, fans them out per recipient preferences, and dispatches
// queued outbox records as email.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	auditrepo "colorgarb_portal_backend/internal/audit/repository"
	"colorgarb_portal_backend/internal/email"
	"colorgarb_portal_backend/internal/events"
	apphttp "colorgarb_portal_backend/internal/http"
	notifhandler "colorgarb_portal_backend/internal/notification/handler"
	"colorgarb_portal_backend/internal/notification/inapp"
	notificationoutbox "colorgarb_portal_backend/internal/notification/outbox"
	"colorgarb_portal_backend/internal/notification/preferences"
	"colorgarb_portal_backend/internal/scheduler"
	"colorgarb_portal_backend/internal/timeline"
	"colorgarb_portal_backend/platform/config"
	"colorgarb_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	templateMilestone = "order_milestone"
	templateShipDate  = "ship_date"
	templateMessage   = "order_message"
	templateExport    = "export_finished"

	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute

	// digestHourUTC is when Daily and Weekly batched notifications go out.
	digestHourUTC = 8
)

// AuditRecorder appends communication-audit entries for delivery attempts.
type AuditRecorder interface {
	Record(ctx context.Context, p auditrepo.AppendParams) error
}

// OutboxStore persists deferred email deliveries and their retry state.
type OutboxStore interface {
	Insert(ctx context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (notificationoutbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

// Module handles all notification-related event subscriptions.
type Module struct {
	pool     *pgxpool.Pool
	sender   email.Sender
	cfg      config.EmailConfig
	log      *logger.Logger
	prefs    *preferences.Service
	inApp    *inapp.Service
	outbox   OutboxStore
	dispatch scheduler.OutboxScheduler
	audit    AuditRecorder
	handler  *notifhandler.HTTPHandler
}

// New creates the notification module with its persistence wired to pool.
func New(pool *pgxpool.Pool, sender email.Sender, cfg config.EmailConfig, log *logger.Logger) *Module {
	prefsSvc := preferences.NewService(preferences.NewRepository(pool), log)
	inAppSvc := inapp.NewService(inapp.NewRepository(pool), log)

	return &Module{
		pool:    pool,
		sender:  sender,
		cfg:     cfg,
		log:     log,
		prefs:   prefsSvc,
		inApp:   inAppSvc,
		outbox:  notificationoutbox.New(pool),
		handler: notifhandler.NewHTTPHandler(inAppSvc, prefsSvc),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.handler == nil {
		return
	}

	notifications := ctx.Protected.Group("/notifications")
	m.handler.RegisterNotificationRoutes(notifications)

	users := ctx.Protected.Group("/users")
	m.handler.RegisterPreferenceRoutes(users)
}

// Preferences exposes the preference service for integration points.
func (m *Module) Preferences() *preferences.Service { return m.prefs }

// SetOutboxScheduler injects the task client that triggers outbox dispatch.
func (m *Module) SetOutboxScheduler(s scheduler.OutboxScheduler) { m.dispatch = s }

// SetAuditRecorder injects the audit writer for delivery attempts.
func (m *Module) SetAuditRecorder(a AuditRecorder) { m.audit = a }

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.OrderStageChanged{}.EventName(), m)
	bus.Subscribe(events.ShipDateRevised{}.EventName(), m)
	bus.Subscribe(events.MessageSent{}.EventName(), m)
	bus.Subscribe(events.ExportJobFinished{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.OrderStageChanged:
		return m.handleOrderStageChanged(ctx, e)
	case events.ShipDateRevised:
		return m.handleShipDateRevised(ctx, e)
	case events.MessageSent:
		return m.handleMessageSent(ctx, e)
	case events.ExportJobFinished:
		return m.handleExportJobFinished(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// recipient is a portal user that can receive notifications.
type recipient struct {
	ID    uuid.UUID
	Name  string
	Email string
	Role  string
}

// resolveOrgRecipients lists the users of an organization.
func (m *Module) resolveOrgRecipients(ctx context.Context, orgID uuid.UUID) []recipient {
	if m.pool == nil || orgID == uuid.Nil {
		return nil
	}
	rows, err := m.pool.Query(ctx,
		`SELECT id, name, email, role FROM users WHERE organization_id = $1`,
		orgID,
	)
	if err != nil {
		m.log.Error("failed to resolve notification recipients", "organizationId", orgID, "error", err)
		return nil
	}
	defer rows.Close()

	var result []recipient
	for rows.Next() {
		var rec recipient
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Role); err != nil {
			m.log.Error("failed to scan notification recipient", "organizationId", orgID, "error", err)
			return result
		}
		result = append(result, rec)
	}
	return result
}

// resolveUserRecipient loads a single user by id.
func (m *Module) resolveUserRecipient(ctx context.Context, userID uuid.UUID) *recipient {
	if m.pool == nil || userID == uuid.Nil {
		return nil
	}
	var rec recipient
	err := m.pool.QueryRow(ctx,
		`SELECT id, name, email, role FROM users WHERE id = $1`,
		userID,
	).Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Role)
	if err != nil {
		return nil
	}
	return &rec
}

// runAtForFrequency decides when a queued notification should go out.
// Immediate dispatches now; Daily and Weekly batch to the next digest slot.
func runAtForFrequency(frequency string, now time.Time) time.Time {
	now = now.UTC()
	switch frequency {
	case preferences.FrequencyDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), digestHourUTC, 0, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	case preferences.FrequencyWeekly:
		next := time.Date(now.Year(), now.Month(), now.Day(), digestHourUTC, 0, 0, 0, time.UTC)
		daysUntilMonday := (int(time.Monday) - int(next.Weekday()) + 7) % 7
		if daysUntilMonday == 0 && !next.After(now) {
			daysUntilMonday = 7
		}
		return next.AddDate(0, 0, daysUntilMonday)
	default:
		return now
	}
}

// enqueueEmail inserts an outbox record and schedules its dispatch task.
func (m *Module) enqueueEmail(ctx context.Context, orgID uuid.UUID, rec recipient, template string, payload any, runAt time.Time) {
	if m.outbox == nil {
		return
	}
	outboxID, err := m.outbox.Insert(ctx, notificationoutbox.InsertParams{
		OrganizationID: orgID,
		UserID:         rec.ID,
		Kind:           "email",
		Template:       template,
		Payload:        payload,
		RunAt:          runAt,
	})
	if err != nil {
		m.log.Error("failed to enqueue notification outbox record",
			"organizationId", orgID,
			"userId", rec.ID,
			"template", template,
			"error", err,
		)
		return
	}

	if m.dispatch != nil {
		if err := m.dispatch.ScheduleOutboxDispatch(ctx, scheduler.NotificationOutboxDuePayload{OutboxID: outboxID.String()}, runAt); err != nil {
			m.log.Error("failed to schedule outbox dispatch", "outboxId", outboxID, "error", err)
			return
		}
	}
	m.log.Info("outbox email enqueued", "outboxId", outboxID, "template", template, "userId", rec.ID, "runAt", runAt)
}

type milestoneOutboxPayload struct {
	ToEmail       string `json:"toEmail"`
	RecipientName string `json:"recipientName"`
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	StageLabel    string `json:"stageLabel"`
	ShipDate      string `json:"shipDate,omitempty"`
}

type shipDateOutboxPayload struct {
	ToEmail          string `json:"toEmail"`
	RecipientName    string `json:"recipientName"`
	OrderID          string `json:"orderId"`
	OrderNumber      string `json:"orderNumber"`
	PreviousShipDate string `json:"previousShipDate"`
	NewShipDate      string `json:"newShipDate"`
	ReasonLabel      string `json:"reasonLabel"`
}

type messageOutboxPayload struct {
	ToEmail       string `json:"toEmail"`
	RecipientName string `json:"recipientName"`
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	SenderName    string `json:"senderName"`
	Excerpt       string `json:"excerpt"`
}

type exportOutboxPayload struct {
	ToEmail       string `json:"toEmail"`
	RecipientName string `json:"recipientName"`
	RecordCount   int    `json:"recordCount"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

func (m *Module) handleOrderStageChanged(ctx context.Context, e events.OrderStageChanged) error {
	stage, err := timeline.ParseStage(e.NewStage)
	if err != nil {
		m.log.Warn("stage change event carries unknown stage", "orderId", e.OrderID, "stage", e.NewStage)
		return nil
	}

	title := fmt.Sprintf("Order %s reached %s", e.OrderNumber, stage.Label())
	content := fmt.Sprintf("Your order %s moved from %s to %s.", e.OrderNumber, e.OldStage, stage.Label())

	orderID := e.OrderID
	for _, rec := range m.resolveOrgRecipients(ctx, e.OrganizationID) {
		p, err := m.prefs.Get(ctx, rec.ID)
		if err != nil {
			m.log.Warn("failed to load preferences; using defaults", "userId", rec.ID, "error", err)
			p = preferences.Defaults(rec.ID)
		}
		if !preferences.WantsMilestone(p, stage) {
			continue
		}

		if err := m.inApp.Send(ctx, inapp.SendParams{
			OrgID:        e.OrganizationID,
			UserID:       rec.ID,
			Title:        title,
			Content:      content,
			ResourceID:   &orderID,
			ResourceType: "order",
			Category:     "info",
		}); err != nil {
			m.log.Error("failed to store milestone notification", "userId", rec.ID, "orderId", e.OrderID, "error", err)
		}

		if p.EmailEnabled && m.cfg.GetEmailEnabled() && rec.Email != "" {
			m.enqueueEmail(ctx, e.OrganizationID, rec, templateMilestone, milestoneOutboxPayload{
				ToEmail:       rec.Email,
				RecipientName: rec.Name,
				OrderID:       e.OrderID.String(),
				OrderNumber:   e.OrderNumber,
				StageLabel:    stage.Label(),
			}, runAtForFrequency(p.Frequency, time.Now()))
		}
	}

	return nil
}

func (m *Module) handleShipDateRevised(ctx context.Context, e events.ShipDateRevised) error {
	reasonLabel := timeline.ReasonLabel(e.Reason)
	title := fmt.Sprintf("Ship date updated for order %s", e.OrderNumber)
	content := fmt.Sprintf("Expected ship date moved from %s to %s (%s).",
		e.PreviousShipDate.Format("2006-01-02"), e.NewShipDate.Format("2006-01-02"), reasonLabel)

	orderID := e.OrderID
	for _, rec := range m.resolveOrgRecipients(ctx, e.OrganizationID) {
		p, err := m.prefs.Get(ctx, rec.ID)
		if err != nil {
			p = preferences.Defaults(rec.ID)
		}

		if err := m.inApp.Send(ctx, inapp.SendParams{
			OrgID:        e.OrganizationID,
			UserID:       rec.ID,
			Title:        title,
			Content:      content,
			ResourceID:   &orderID,
			ResourceType: "order",
			Category:     "warning",
		}); err != nil {
			m.log.Error("failed to store ship date notification", "userId", rec.ID, "orderId", e.OrderID, "error", err)
		}

		if p.EmailEnabled && m.cfg.GetEmailEnabled() && rec.Email != "" {
			m.enqueueEmail(ctx, e.OrganizationID, rec, templateShipDate, shipDateOutboxPayload{
				ToEmail:          rec.Email,
				RecipientName:    rec.Name,
				OrderID:          e.OrderID.String(),
				OrderNumber:      e.OrderNumber,
				PreviousShipDate: e.PreviousShipDate.Format("January 2, 2006"),
				NewShipDate:      e.NewShipDate.Format("January 2, 2006"),
				ReasonLabel:      reasonLabel,
			}, runAtForFrequency(p.Frequency, time.Now()))
		}
	}

	return nil
}

func (m *Module) handleMessageSent(ctx context.Context, e events.MessageSent) error {
	title := fmt.Sprintf("New message on order %s", e.OrderNumber)
	content := fmt.Sprintf("%s wrote: %s", e.SenderName, e.Excerpt)

	orderID := e.OrderID
	for _, rec := range m.resolveOrgRecipients(ctx, e.OrganizationID) {
		if rec.ID == e.SenderID {
			continue
		}
		if e.RecipientRole != "" && !strings.EqualFold(rec.Role, e.RecipientRole) {
			continue
		}

		p, err := m.prefs.Get(ctx, rec.ID)
		if err != nil {
			p = preferences.Defaults(rec.ID)
		}

		if err := m.inApp.Send(ctx, inapp.SendParams{
			OrgID:        e.OrganizationID,
			UserID:       rec.ID,
			Title:        title,
			Content:      content,
			ResourceID:   &orderID,
			ResourceType: "message",
			Category:     "info",
		}); err != nil {
			m.log.Error("failed to store message notification", "userId", rec.ID, "orderId", e.OrderID, "error", err)
		}

		if p.EmailEnabled && m.cfg.GetEmailEnabled() && rec.Email != "" {
			m.enqueueEmail(ctx, e.OrganizationID, rec, templateMessage, messageOutboxPayload{
				ToEmail:       rec.Email,
				RecipientName: rec.Name,
				OrderID:       e.OrderID.String(),
				OrderNumber:   e.OrderNumber,
				SenderName:    e.SenderName,
				Excerpt:       e.Excerpt,
			}, runAtForFrequency(p.Frequency, time.Now()))
		}
	}

	return nil
}

func (m *Module) handleExportJobFinished(ctx context.Context, e events.ExportJobFinished) error {
	rec := m.resolveUserRecipient(ctx, e.RequestedBy)
	if rec == nil {
		m.log.Warn("export finished for unknown user", "jobId", e.JobID, "userId", e.RequestedBy)
		return nil
	}

	title := "Communication audit export ready"
	category := "success"
	content := fmt.Sprintf("Your export of %d records is ready to download.", e.RecordCount)
	if e.Error != "" {
		title = "Communication audit export failed"
		category = "error"
		content = fmt.Sprintf("Your export could not be completed: %s", e.Error)
	}

	jobID := e.JobID
	if err := m.inApp.Send(ctx, inapp.SendParams{
		OrgID:        orgIDOfUser(ctx, m.pool, rec.ID),
		UserID:       rec.ID,
		Title:        title,
		Content:      content,
		ResourceID:   &jobID,
		ResourceType: "export",
		Category:     category,
	}); err != nil {
		m.log.Error("failed to store export notification", "userId", rec.ID, "jobId", e.JobID, "error", err)
	}

	if m.cfg.GetEmailEnabled() && rec.Email != "" {
		// Export results always go out immediately; the artifact link expires.
		m.enqueueEmail(ctx, orgIDOfUser(ctx, m.pool, rec.ID), *rec, templateExport, exportOutboxPayload{
			ToEmail:       rec.Email,
			RecipientName: rec.Name,
			RecordCount:   e.RecordCount,
			ErrorMessage:  e.Error,
		}, time.Now().UTC())
	}

	return nil
}

func orgIDOfUser(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID) uuid.UUID {
	if pool == nil {
		return uuid.Nil
	}
	var orgID uuid.UUID
	if err := pool.QueryRow(ctx, `SELECT organization_id FROM users WHERE id = $1`, userID).Scan(&orgID); err != nil {
		return uuid.Nil
	}
	return orgID
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox repository not configured; skipping outbox due event", "outboxId", e.OutboxID)
		return nil
	}

	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != "email" {
		m.log.Warn("unsupported outbox kind; marking failed", "outboxId", rec.ID.String(), "kind", rec.Kind)
		_ = m.outbox.MarkFailed(ctx, rec.ID, "unsupported kind: "+rec.Kind)
		return nil
	}

	if deliverErr := m.deliverOutboxEmail(ctx, rec); deliverErr != nil {
		// The outbox owns the retry schedule (backoff plus its own task);
		// returning the error would have asynq re-drive the record as well.
		m.handleOutboxDeliveryError(ctx, rec, deliverErr)
		return nil
	}

	_ = m.outbox.MarkSucceeded(ctx, rec.ID)
	m.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "template", rec.Template)
	return nil
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (notificationoutbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return notificationoutbox.Record{}, false, err
	}
	if rec.Status == notificationoutbox.StatusSucceeded {
		m.log.Debug("outbox record already succeeded; skipping", "outboxId", rec.ID.String())
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return notificationoutbox.Record{}, false, err
	}
	return rec, true, nil
}

// deliverOutboxEmail sends the record's email and appends the delivery attempt
// to the communication audit trail, success or failure alike.
func (m *Module) deliverOutboxEmail(ctx context.Context, rec notificationoutbox.Record) error {
	p, err := m.prefs.Get(ctx, rec.UserID)
	if err == nil && !p.EmailEnabled {
		// Preferences changed after enqueue; honor the current setting.
		m.log.Info("recipient disabled email; skipping outbox send", "outboxId", rec.ID.String(), "userId", rec.UserID)
		return nil
	}

	var toEmail, subject, excerpt string
	var orderID *uuid.UUID
	var sendErr error

	switch rec.Template {
	case templateMilestone:
		var payload milestoneOutboxPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
			return nil
		}
		toEmail = payload.ToEmail
		subject = fmt.Sprintf("Order %s reached %s", payload.OrderNumber, payload.StageLabel)
		excerpt = subject
		orderID = parseOptionalUUID(payload.OrderID)
		sendErr = m.sender.SendMilestoneEmail(ctx, payload.ToEmail, payload.RecipientName, payload.OrderNumber, payload.StageLabel, payload.ShipDate)

	case templateShipDate:
		var payload shipDateOutboxPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
			return nil
		}
		toEmail = payload.ToEmail
		subject = fmt.Sprintf("Ship date updated for order %s", payload.OrderNumber)
		excerpt = fmt.Sprintf("Moved from %s to %s (%s)", payload.PreviousShipDate, payload.NewShipDate, payload.ReasonLabel)
		orderID = parseOptionalUUID(payload.OrderID)
		sendErr = m.sender.SendShipDateEmail(ctx, payload.ToEmail, payload.RecipientName, payload.OrderNumber, payload.PreviousShipDate, payload.NewShipDate, payload.ReasonLabel)

	case templateMessage:
		var payload messageOutboxPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
			return nil
		}
		toEmail = payload.ToEmail
		subject = fmt.Sprintf("New message on order %s", payload.OrderNumber)
		excerpt = payload.Excerpt
		orderID = parseOptionalUUID(payload.OrderID)
		sendErr = m.sender.SendMessageEmail(ctx, payload.ToEmail, payload.RecipientName, payload.OrderNumber, payload.SenderName, payload.Excerpt)

	case templateExport:
		var payload exportOutboxPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
			return nil
		}
		toEmail = payload.ToEmail
		subject = "Communication audit export"
		excerpt = fmt.Sprintf("Export finished with %d records", payload.RecordCount)
		if payload.ErrorMessage != "" {
			excerpt = "Export failed: " + payload.ErrorMessage
		}
		sendErr = m.sender.SendExportEmail(ctx, payload.ToEmail, payload.RecipientName, payload.RecordCount, payload.ErrorMessage)

	default:
		m.log.Warn("unsupported outbox template; marking failed", "outboxId", rec.ID.String(), "template", rec.Template)
		_ = m.outbox.MarkFailed(ctx, rec.ID, "unsupported template: "+rec.Template)
		return nil
	}

	m.recordDeliveryAttempt(ctx, rec, orderID, toEmail, subject, excerpt, sendErr)
	return sendErr
}

// recordDeliveryAttempt appends one audit entry per send, keeping the
// compliance trail complete even when delivery fails.
func (m *Module) recordDeliveryAttempt(ctx context.Context, rec notificationoutbox.Record, orderID *uuid.UUID, toEmail, subject, excerpt string, sendErr error) {
	if m.audit == nil {
		return
	}

	status := auditrepo.StatusSent
	if sendErr != nil {
		status = auditrepo.StatusFailed
	}

	orgID := rec.OrganizationID
	if err := m.audit.Record(ctx, auditrepo.AppendParams{
		OrderID:           orderID,
		OrganizationID:    &orgID,
		Type:              auditrepo.TypeEmail,
		Direction:         "Outbound",
		Sender:            m.cfg.GetEmailFromAddress(),
		Recipient:         toEmail,
		Subject:           subject,
		BodyExcerpt:       excerpt,
		DeliveryStatus:    status,
		SentAt:            time.Now().UTC(),
		ExternalMessageID: rec.ID.String(),
	}); err != nil {
		m.log.Error("failed to record delivery audit entry", "outboxId", rec.ID.String(), "error", err)
	}
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec notificationoutbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"template", rec.Template,
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := time.Now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	if m.dispatch != nil {
		if err := m.dispatch.ScheduleOutboxDispatch(ctx, scheduler.NotificationOutboxDuePayload{OutboxID: rec.ID.String()}, retryAt); err != nil {
			m.log.Error("failed to schedule outbox retry task", "outboxId", rec.ID.String(), "error", err)
		}
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"template", rec.Template,
		"attempt", attempt,
		"maxAttempts", maxOutboxRetryAttempts,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func parseOptionalUUID(raw string) *uuid.UUID {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &parsed
}
