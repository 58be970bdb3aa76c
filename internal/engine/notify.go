package engine

import (
	"fmt"
	"strings"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
)

// Dispatcher translates execution lifecycle events into notification-intent
// records for every channel enabled in the order's notification settings.
// It performs no transport; intents are persisted with a deterministic
// dedupe key so a retried pipeline run cannot double-send.
type Dispatcher struct{}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Intents builds the intent records for the given events. Events whose flag
// is disabled in the settings produce nothing.
func (d *Dispatcher) Intents(order *model.RecurringOrder, exec *model.OrderExecution, events ...string) []model.NotificationIntent {
	var intents []model.NotificationIntent
	for _, event := range events {
		if !eventEnabled(order.Notifications, event) {
			continue
		}
		payload := executionPayload(order, exec)
		intents = append(intents, d.fanOut(order, exec.ID, event, payload)...)
	}
	return intents
}

// ReminderIntents builds upcoming-execution reminders for a given target
// date. The date is baked into the dedupe key since no execution exists yet.
func (d *Dispatcher) ReminderIntents(order *model.RecurringOrder, target time.Time) []model.NotificationIntent {
	payload := model.IntentPayload{
		"recurring_order_id":  order.ID.String(),
		"name":                order.Name,
		"next_execution_date": target.Format(time.RFC3339),
	}
	intents := d.fanOut(order, uuid.Nil, model.EventUpcomingReminder, payload)
	day := target.Format("2006-01-02")
	for i := range intents {
		intents[i].DedupeKey = fmt.Sprintf("%s:%s:%s:%s:%s",
			order.ID, model.EventUpcomingReminder, day, intents[i].Channel, intents[i].Recipient)
	}
	return intents
}

func (d *Dispatcher) fanOut(order *model.RecurringOrder, execID uuid.UUID, event string, payload model.IntentPayload) []model.NotificationIntent {
	templateKey := strings.ToLower(event)
	var intents []model.NotificationIntent

	add := func(channel, recipient string) {
		intents = append(intents, model.NotificationIntent{
			DedupeKey:        fmt.Sprintf("%s:%s:%s:%s", execID, event, channel, recipient),
			ExecutionID:      execID,
			RecurringOrderID: order.ID,
			EventType:        event,
			Channel:          channel,
			Recipient:        recipient,
			TemplateKey:      templateKey,
			Payload:          payload,
		})
	}

	for _, r := range order.Notifications.EmailRecipients {
		add(model.ChannelEmail, r)
	}
	for _, r := range order.Notifications.SMSRecipients {
		add(model.ChannelSMS, r)
	}
	for _, r := range order.Notifications.WebhookURLs {
		add(model.ChannelWebhook, r)
	}
	return intents
}

func eventEnabled(s model.NotificationSettings, event string) bool {
	switch event {
	case model.EventOrderCreated:
		return s.OnOrderCreated
	case model.EventOrderSuccess:
		return s.OnOrderSuccess
	case model.EventOrderFailure:
		return s.OnOrderFailure
	case model.EventInventoryIssue:
		return s.OnInventoryIssue
	case model.EventPriceChange:
		return s.OnPriceChange
	case model.EventApprovalRequired:
		return s.OnApprovalRequired
	case model.EventUpcomingReminder:
		return len(s.ReminderLeadDays) > 0
	}
	return false
}

func executionPayload(order *model.RecurringOrder, exec *model.OrderExecution) model.IntentPayload {
	payload := model.IntentPayload{
		"recurring_order_id": order.ID.String(),
		"execution_id":       exec.ID.String(),
		"name":               order.Name,
		"status":             exec.Status,
		"scheduled_date":     exec.ScheduledDate.Format(time.RFC3339),
		"total_value":        exec.TotalValue.String(),
		"item_count":         exec.ItemCount,
		"adjustments":        len(exec.Adjustments),
		"issues":             len(exec.Issues),
	}
	if exec.OrderID != nil {
		payload["order_id"] = exec.OrderID.String()
	}
	return payload
}
