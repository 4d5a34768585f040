package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Slip kind enum constants
const (
	SlipKindRequisition   = "REQUISITION"
	SlipKindPurchaseOrder = "PURCHASE_ORDER"
)

// Slip approval flag enum constants. Slips approve in a single step.
const (
	SlipPending  = "PENDING"
	SlipApproved = "APPROVED"
	SlipRejected = "REJECTED"
)

// Slip is a subordinate financial document (requisition slip or purchase-order
// slip) attached to a request that has reached requisition. Its approval is a
// single-step flag; approving the last pending requisition slip advances the
// parent request to APPROVED.
type Slip struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SlipNo       string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"slip_no"`
	Kind         string          `gorm:"type:varchar(20);not null;index" json:"kind"` // REQUISITION, PURCHASE_ORDER
	RequestID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"request_id"`
	Request      *Request        `gorm:"foreignKey:RequestID" json:"request,omitempty"`
	Particulars  string          `gorm:"type:text;not null" json:"particulars"`
	Supplier     string          `gorm:"type:varchar(255)" json:"supplier"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Approval     string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"approval"`
	PreparedByID uuid.UUID       `gorm:"type:uuid;not null" json:"prepared_by_id"`
	PreparedBy   *User           `gorm:"foreignKey:PreparedByID" json:"prepared_by,omitempty"`
	ApprovedByID *uuid.UUID      `gorm:"type:uuid" json:"approved_by_id"`
	Approver     *User           `gorm:"foreignKey:ApprovedByID" json:"approver,omitempty"`
	ActionDate   *time.Time      `json:"action_date"`
	Remarks      string          `gorm:"type:text" json:"remarks"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
