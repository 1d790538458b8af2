package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApprovalStatus enum constants
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

// Module enum constants — which back-office area a request belongs to
const (
	ModuleFinance  = "FINANCE"
	ModuleHR       = "HR"
	ModuleProjects = "PROJECTS"
	ModuleQurban   = "QURBAN"
)

// Priority enum constants
const (
	PriorityUrgent = "URGENT"
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// History action enum constants. Cancellation is a status-only change and
// intentionally has no history action.
const (
	ActionSubmitted  = "SUBMITTED"
	ActionApproved   = "APPROVED"
	ActionRejected   = "REJECTED"
	ActionCommented  = "COMMENTED"
	ActionReassigned = "REASSIGNED"
)

// IsTerminalStatus reports whether no further transition is legal from status.
func IsTerminalStatus(status string) bool {
	return status == StatusApproved || status == StatusRejected || status == StatusCancelled
}

// ValidModule reports whether module is one of the known back-office areas.
func ValidModule(module string) bool {
	switch module {
	case ModuleFinance, ModuleHR, ModuleProjects, ModuleQurban:
		return true
	}
	return false
}

// ValidPriority reports whether priority is a known level.
func ValidPriority(priority string) bool {
	switch priority {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// JSONMap stores business-specific metadata as a JSONB column. The engine
// never interprets its contents.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	return json.Unmarshal(data, m)
}

// ApprovalRequest represents one governed business action awaiting a decision.
// It is created as PENDING and only ever mutated through the approval service's
// transition operations; it is never physically deleted.
type ApprovalRequest struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FacilityID uuid.UUID `gorm:"type:uuid;not null;index" json:"facility_id"` // tenant/facility scope

	Module      string  `gorm:"type:varchar(20);not null;index" json:"module"`   // FINANCE, HR, PROJECTS, QURBAN
	RequestType string  `gorm:"type:varchar(50);not null" json:"request_type"`   // free-form business sub-kind, e.g. budget_transfer
	Priority    string  `gorm:"type:varchar(10);not null;index" json:"priority"` // URGENT, HIGH, MEDIUM, LOW
	Title       string  `gorm:"type:varchar(255);not null" json:"title"`
	Description string  `gorm:"type:text" json:"description"`
	Metadata    JSONMap `gorm:"type:jsonb" json:"metadata"`

	// Monetary block — present only when the underlying action carries a value.
	// AmountBase is derived exactly once at submit from the caller-supplied
	// exchange rate and never recomputed; the rate is kept for audit.
	Amount       *decimal.Decimal `gorm:"type:decimal(18,4)" json:"amount"`
	Currency     string           `gorm:"type:varchar(10)" json:"currency"`
	ExchangeRate *decimal.Decimal `gorm:"type:decimal(18,6)" json:"exchange_rate"`
	AmountBase   *decimal.Decimal `gorm:"column:amount_base;type:decimal(18,4)" json:"amount_base"`

	RequestedByID   uuid.UUID `gorm:"type:uuid;not null;index" json:"requested_by_id"`
	RequestedByName string    `gorm:"type:varchar(255);not null" json:"requested_by_name"`

	CurrentApproverID   *uuid.UUID `gorm:"type:uuid" json:"current_approver_id"`
	CurrentApproverName string     `gorm:"type:varchar(255)" json:"current_approver_name"`
	CurrentApproverRole string     `gorm:"type:varchar(50)" json:"current_approver_role"`

	Status      string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	RequestedAt time.Time  `gorm:"not null;index" json:"requested_at"`
	Deadline    *time.Time `json:"deadline"` // advisory only, never auto-expired

	DecidedByID   *uuid.UUID `gorm:"type:uuid" json:"decided_by_id"`
	DecidedByName string     `gorm:"type:varchar(255)" json:"decided_by_name"`
	DecidedAt     *time.Time `json:"decided_at"`

	History []ApprovalHistoryEntry `gorm:"foreignKey:RequestID" json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApprovalHistoryEntry is one immutable fact in a request's audit trail.
// Entries are append-only; insertion order is chronological order.
type ApprovalHistoryEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Seq       int64     `gorm:"autoIncrement;not null;uniqueIndex" json:"-"` // monotonic tiebreaker for same-instant appends
	RequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	Action    string    `gorm:"type:varchar(20);not null" json:"action"` // SUBMITTED, APPROVED, REJECTED, COMMENTED, REASSIGNED
	ActorID   uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`
	ActorName string    `gorm:"type:varchar(255);not null" json:"actor_name"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
