package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExecutionStatus constants
const (
	ExecutionPending = "PENDING"
	ExecutionSuccess = "SUCCESS"
	ExecutionFailed  = "FAILED"
)

// ApprovalState constants
const (
	ApprovalNone     = "NONE"
	ApprovalRequired = "REQUIRED"
	ApprovalGranted  = "GRANTED"
)

// AdjustmentType constants
const (
	AdjustmentPrice        = "PRICE"
	AdjustmentQuantity     = "QUANTITY"
	AdjustmentSubstitution = "SUBSTITUTION"
)

// IssueType constants
const (
	IssueInventory  = "INVENTORY"
	IssuePricing    = "PRICING"
	IssueValidation = "VALIDATION"
	IssueApproval   = "APPROVAL"
)

// IssueSeverity constants
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Adjustment is an expected, recorded deviation from the template.
type Adjustment struct {
	Type         string `json:"type"` // PRICE, QUANTITY, SUBSTITUTION
	ProductID    string `json:"product_id"`
	OldValue     string `json:"old_value"`
	NewValue     string `json:"new_value"`
	Reason       string `json:"reason"`
	AutoApproved bool   `json:"auto_approved"`
}

// Adjustments is stored as a JSONB column.
type Adjustments []Adjustment

func (a Adjustments) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Adjustments) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// Issue is a recorded problem encountered during resolution or placement.
type Issue struct {
	Type     string `json:"type"`     // INVENTORY, PRICING, VALIDATION, APPROVAL
	Severity string `json:"severity"` // LOW, MEDIUM, HIGH, CRITICAL
	Message  string `json:"message"`
}

// Issues is stored as a JSONB column.
type Issues []Issue

func (i Issues) Value() (driver.Value, error) {
	return json.Marshal(i)
}

func (i *Issues) Scan(src interface{}) error {
	return scanJSON(src, i)
}

// OrderExecution is one attempt (including its retries) to realize a
// RecurringOrder on a given cycle.
type OrderExecution struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RecurringOrderID uuid.UUID `gorm:"type:uuid;not null;index" json:"recurring_order_id"`
	Status           string    `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`

	ScheduledDate time.Time  `gorm:"not null" json:"scheduled_date"`
	ExecutedDate  *time.Time `json:"executed_date"`
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries    int        `gorm:"not null" json:"max_retries"`
	Retryable     bool       `gorm:"not null;default:false" json:"retryable"`
	NextRetryAt   *time.Time `gorm:"index" json:"next_retry_at"`

	ApprovalState string     `gorm:"type:varchar(20);not null;default:'NONE'" json:"approval_state"`
	ApprovedAt    *time.Time `json:"approved_at"`

	OrderID    *uuid.UUID      `gorm:"type:uuid" json:"order_id"`
	TotalValue decimal.Decimal `gorm:"type:decimal(14,4)" json:"total_value"`
	ItemCount  int             `gorm:"not null;default:0" json:"item_count"`

	Adjustments Adjustments `gorm:"type:jsonb" json:"adjustments"`
	Issues      Issues      `gorm:"type:jsonb" json:"issues"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the execution can never be mutated again:
// SUCCESS, or FAILED with no retry budget left and no retry pending. A
// FAILED execution whose final retry has been stamped (next_retry_at set)
// is still open until that attempt runs.
func (e *OrderExecution) IsTerminal() bool {
	if e.Status == ExecutionSuccess {
		return true
	}
	if e.Status == ExecutionFailed {
		if !e.Retryable {
			return true
		}
		if e.NextRetryAt != nil {
			return false
		}
		return e.RetryCount >= e.MaxRetries
	}
	return false
}

// AwaitingApproval reports whether the execution is suspended at the approval gate.
func (e *OrderExecution) AwaitingApproval() bool {
	return e.Status == ExecutionPending && e.ApprovalState == ApprovalRequired
}

// AddIssue appends an issue to the record.
func (e *OrderExecution) AddIssue(issueType, severity, message string) {
	e.Issues = append(e.Issues, Issue{Type: issueType, Severity: severity, Message: message})
}

// NotificationChannel constants
const (
	ChannelEmail   = "EMAIL"
	ChannelSMS     = "SMS"
	ChannelWebhook = "WEBHOOK"
)

// NotificationEvent constants
const (
	EventOrderCreated     = "ORDER_CREATED"
	EventOrderSuccess     = "ORDER_SUCCESS"
	EventOrderFailure     = "ORDER_FAILURE"
	EventInventoryIssue   = "INVENTORY_ISSUE"
	EventPriceChange      = "PRICE_CHANGE"
	EventApprovalRequired = "APPROVAL_REQUIRED"
	EventUpcomingReminder = "UPCOMING_REMINDER"
)

// IntentPayload is the free-form body handed to the notification transport.
type IntentPayload map[string]interface{}

func (p IntentPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *IntentPayload) Scan(src interface{}) error {
	return scanJSON(src, p)
}

// NotificationIntent is a pending outbound notification produced by the
// dispatcher and consumed by the external transport. DedupeKey is unique so
// a retried pipeline run cannot double-send the same (execution, event,
// channel, recipient) combination.
type NotificationIntent struct {
	ID               uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DedupeKey        string        `gorm:"type:varchar(512);not null;uniqueIndex" json:"dedupe_key"`
	ExecutionID      uuid.UUID     `gorm:"type:uuid;index" json:"execution_id"`
	RecurringOrderID uuid.UUID     `gorm:"type:uuid;not null;index" json:"recurring_order_id"`
	EventType        string        `gorm:"type:varchar(30);not null" json:"event_type"`
	Channel          string        `gorm:"type:varchar(20);not null" json:"channel"`
	Recipient        string        `gorm:"type:varchar(255);not null" json:"recipient"`
	TemplateKey      string        `gorm:"type:varchar(100);not null" json:"template_key"`
	Payload          IntentPayload `gorm:"type:jsonb" json:"payload"`
	CreatedAt        time.Time     `json:"created_at"`
}
