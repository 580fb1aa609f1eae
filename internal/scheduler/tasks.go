package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAuditExportRun = "audit.export.run"

const TaskNotificationOutboxDue = "notification.outbox.due"

type AuditExportPayload struct {
	JobID       string `json:"jobId"`
	RequestedBy string `json:"requestedBy"`
}

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
}

func NewAuditExportTask(payload AuditExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditExportRun, data), nil
}

func ParseAuditExportPayload(task *asynq.Task) (AuditExportPayload, error) {
	var payload AuditExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AuditExportPayload{}, err
	}
	return payload, nil
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}
