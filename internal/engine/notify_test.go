package engine

import (
	"testing"
	"time"

	"reorder/internal/model"

	"github.com/google/uuid"
)

func notifyingOrder(settings model.NotificationSettings) *model.RecurringOrder {
	return &model.RecurringOrder{
		ID:            uuid.New(),
		Name:          "weekly restock",
		Notifications: settings,
	}
}

func TestDispatcherFansOutPerChannel(t *testing.T) {
	order := notifyingOrder(model.NotificationSettings{
		EmailRecipients: []string{"ops@example.com", "buyer@example.com"},
		SMSRecipients:   []string{"+15550100"},
		WebhookURLs:     []string{"https://example.com/hook"},
		OnOrderSuccess:  true,
	})
	exec := &model.OrderExecution{ID: uuid.New(), RecurringOrderID: order.ID, Status: model.ExecutionSuccess}

	intents := NewDispatcher().Intents(order, exec, model.EventOrderSuccess)
	if len(intents) != 4 {
		t.Fatalf("got %d intents, want 4", len(intents))
	}

	channels := map[string]int{}
	for _, it := range intents {
		channels[it.Channel]++
		if it.EventType != model.EventOrderSuccess {
			t.Fatalf("event type = %s, want %s", it.EventType, model.EventOrderSuccess)
		}
		if it.ExecutionID != exec.ID || it.RecurringOrderID != order.ID {
			t.Fatalf("intent not bound to execution: %+v", it)
		}
	}
	if channels[model.ChannelEmail] != 2 || channels[model.ChannelSMS] != 1 || channels[model.ChannelWebhook] != 1 {
		t.Fatalf("channel fan-out = %v", channels)
	}
}

func TestDispatcherHonorsEventFlags(t *testing.T) {
	order := notifyingOrder(model.NotificationSettings{
		EmailRecipients: []string{"ops@example.com"},
		OnOrderSuccess:  true,
		OnOrderFailure:  false,
	})
	exec := &model.OrderExecution{ID: uuid.New(), RecurringOrderID: order.ID}

	intents := NewDispatcher().Intents(order, exec, model.EventOrderSuccess, model.EventOrderFailure, model.EventPriceChange)
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want only the enabled event", len(intents))
	}
	if intents[0].EventType != model.EventOrderSuccess {
		t.Fatalf("event type = %s, want %s", intents[0].EventType, model.EventOrderSuccess)
	}
}

func TestDispatcherDedupeKeysAreDeterministic(t *testing.T) {
	order := notifyingOrder(model.NotificationSettings{
		EmailRecipients: []string{"ops@example.com"},
		OnOrderSuccess:  true,
	})
	exec := &model.OrderExecution{ID: uuid.New(), RecurringOrderID: order.ID}
	d := NewDispatcher()

	first := d.Intents(order, exec, model.EventOrderSuccess)
	second := d.Intents(order, exec, model.EventOrderSuccess)
	if first[0].DedupeKey == "" {
		t.Fatal("empty dedupe key")
	}
	if first[0].DedupeKey != second[0].DedupeKey {
		t.Fatalf("dedupe key not stable: %q vs %q", first[0].DedupeKey, second[0].DedupeKey)
	}
}

func TestReminderIntents(t *testing.T) {
	order := notifyingOrder(model.NotificationSettings{
		EmailRecipients:  []string{"ops@example.com"},
		ReminderLeadDays: []int{3},
	})
	target := date(2025, time.July, 10)
	d := NewDispatcher()

	intents := d.ReminderIntents(order, target)
	if len(intents) != 1 {
		t.Fatalf("got %d intents, want 1", len(intents))
	}
	it := intents[0]
	if it.EventType != model.EventUpcomingReminder {
		t.Fatalf("event type = %s", it.EventType)
	}

	// Same target day produces the same key; the next cycle produces a new one.
	again := d.ReminderIntents(order, target)
	if again[0].DedupeKey != it.DedupeKey {
		t.Fatalf("same-day reminder keys differ: %q vs %q", again[0].DedupeKey, it.DedupeKey)
	}
	nextCycle := d.ReminderIntents(order, target.AddDate(0, 0, 7))
	if nextCycle[0].DedupeKey == it.DedupeKey {
		t.Fatal("reminder keys for different target dates collide")
	}
}
