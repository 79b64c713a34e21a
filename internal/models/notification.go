package models

import "time"

// Notification kinds emitted by the work order engine.
const (
	NotifyWorkOrderCreated   = "work_order_created"
	NotifyMechanicAssigned   = "mechanic_assigned"
	NotifyWorkOrderCompleted = "work_order_completed"
)

// Notification is a fire-and-forget event handed to the notification sink.
// Delivery failures never affect engine state.
type Notification struct {
	Recipient string            `json:"recipient"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	ActionURL string            `json:"action_url,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
