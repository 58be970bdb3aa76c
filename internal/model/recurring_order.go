package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequency enum constants
const (
	FrequencyDaily     = "DAILY"
	FrequencyWeekly    = "WEEKLY"
	FrequencyBiweekly  = "BIWEEKLY"
	FrequencyMonthly   = "MONTHLY"
	FrequencyQuarterly = "QUARTERLY"
)

// RecurringOrderStatus constants
const (
	RecurringStatusActive    = "ACTIVE"
	RecurringStatusPaused    = "PAUSED"
	RecurringStatusCancelled = "CANCELLED"
)

// BackorderBehavior constants
const (
	BackorderAllow   = "ALLOW"
	BackorderPartial = "PARTIAL"
	BackorderReject  = "REJECT"
)

// ValidFrequency reports whether f is a known schedule frequency.
func ValidFrequency(f string) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// TemplateItem is one line of the standing order template.
type TemplateItem struct {
	ProductID               uuid.UUID       `json:"product_id"`
	Quantity                int             `json:"quantity"`
	MinQuantity             int             `json:"min_quantity,omitempty"`
	MaxQuantity             int             `json:"max_quantity,omitempty"`
	LastKnownPrice          decimal.Decimal `json:"last_known_price"`
	UseDynamicPricing       bool            `json:"use_dynamic_pricing"`
	AllowQuantityAdjustment bool            `json:"allow_quantity_adjustment"`
	BackorderBehavior       string          `json:"backorder_behavior"` // ALLOW, PARTIAL, REJECT
}

// TemplateItems is stored as a JSONB column.
type TemplateItems []TemplateItem

func (t TemplateItems) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TemplateItems) Scan(src interface{}) error {
	return scanJSON(src, t)
}

// DeliveryAddress is the shipping destination snapshot on the template.
type DeliveryAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a DeliveryAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *DeliveryAddress) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// NotificationSettings controls which lifecycle events fan out to which channels.
type NotificationSettings struct {
	EmailRecipients    []string `json:"email_recipients,omitempty"`
	SMSRecipients      []string `json:"sms_recipients,omitempty"`
	WebhookURLs        []string `json:"webhook_urls,omitempty"`
	OnOrderCreated     bool     `json:"on_order_created"`
	OnOrderSuccess     bool     `json:"on_order_success"`
	OnOrderFailure     bool     `json:"on_order_failure"`
	OnInventoryIssue   bool     `json:"on_inventory_issue"`
	OnPriceChange      bool     `json:"on_price_change"`
	OnApprovalRequired bool     `json:"on_approval_required"`
	ReminderLeadDays   []int    `json:"reminder_lead_days,omitempty"`
}

func (n NotificationSettings) Value() (driver.Value, error) {
	return json.Marshal(n)
}

func (n *NotificationSettings) Scan(src interface{}) error {
	return scanJSON(src, n)
}

// StringList is a JSONB string array (tags).
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringList) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// CustomFields is an opaque JSONB key/value map.
type CustomFields map[string]string

func (c CustomFields) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *CustomFields) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// RecurringOrder is a standing instruction to periodically place a purchase order.
type RecurringOrder struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SupplierID uuid.UUID `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Warehouse  string    `gorm:"type:varchar(100);not null;index" json:"warehouse"`

	// Schedule
	Frequency         string    `gorm:"type:varchar(20);not null" json:"frequency"`
	Interval          int       `gorm:"not null;default:1" json:"interval"`
	StartDate         time.Time `gorm:"not null" json:"start_date"`
	AnchorDay         int       `gorm:"not null" json:"anchor_day"` // day-of-month of StartDate, monthly clamping anchor
	NextExecutionDate time.Time `gorm:"not null;index" json:"next_execution_date"`
	Status            string    `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`

	// Template
	Items            TemplateItems   `gorm:"type:jsonb;not null" json:"items"`
	ShippingMethod   string          `gorm:"type:varchar(100)" json:"shipping_method"`
	ShippingEstimate decimal.Decimal `gorm:"type:decimal(14,4)" json:"shipping_estimate"`
	IncludeShipping  bool            `gorm:"not null;default:false" json:"include_shipping"`
	PaymentMethod    string          `gorm:"type:varchar(100)" json:"payment_method"`
	DeliveryAddress  DeliveryAddress `gorm:"type:jsonb" json:"delivery_address"`
	Instructions     string          `gorm:"type:text" json:"instructions"`

	// Policy
	AutoApprove       bool                `gorm:"not null;default:false" json:"auto_approve"`
	AutoPriceAdjust   bool                `gorm:"not null;default:true" json:"auto_price_adjust"`
	ApprovalThreshold decimal.NullDecimal `gorm:"type:decimal(14,4)" json:"approval_threshold"`
	MaxOrderValue     decimal.NullDecimal `gorm:"type:decimal(14,4)" json:"max_order_value"`
	MaxRetries        int                 `gorm:"not null;default:3" json:"max_retries"`

	// Notifications
	Notifications NotificationSettings `gorm:"type:jsonb" json:"notifications"`

	// Metadata
	Tags      StringList   `gorm:"type:jsonb" json:"tags"`
	Custom    CustomFields `gorm:"type:jsonb" json:"custom"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RequiresApprovalPolicy reports whether this order can ever execute without
// manual sign-off: approval is in play when auto-approve is off or a threshold is set.
func (r *RecurringOrder) RequiresApprovalPolicy() bool {
	return !r.AutoApprove || r.ApprovalThreshold.Valid
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported jsonb source type")
	}
}
