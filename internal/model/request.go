package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Request kind enum constants
const (
	KindPurchaseRequest = "PURCHASE_REQUEST"
	KindJobOrder        = "JOB_ORDER"
)

// Request status enum constants
const (
	StatusDraft                = "DRAFT"
	StatusForEndorsement       = "FOR_ENDORSEMENT"
	StatusForAdminVerification = "FOR_ADMIN_VERIFICATION"
	StatusForCeoApproval       = "FOR_CEO_APPROVAL"
	StatusForRequisition       = "FOR_REQUISITION"
	StatusApproved             = "APPROVED"
	StatusRejected             = "REJECTED"
	StatusCancelled            = "CANCELLED"
	StatusPendingClosure       = "PENDING_REQUESTER_CLOSURE"
	StatusClosed               = "CLOSED"
)

// Approval stage enum constants
const (
	StageDepartmentHead = "DEPARTMENT_HEAD"
	StageDivisionHead   = "DIVISION_HEAD"
	StageAdmin          = "ADMIN"
	StageCeoOrAvp       = "CEO_OR_AVP"
	StageFinance        = "FINANCE"
)

// Approval action enum constants
const (
	ApprovalActionApprove = "APPROVE"
	ApprovalActionReject  = "REJECT"
	ApprovalActionCancel  = "CANCEL"
)

// ReportType enum constants. ReportType picks the supervisory chain at creation.
const (
	ReportTypeDepartment = "Department"
	ReportTypeDivision   = "Division"
)

// Request represents a procurement request (purchase request or job order).
// Both kinds share the same approval lifecycle; Kind is only a discriminator.
type Request struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestNo   string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"request_no"`
	Kind        string          `gorm:"type:varchar(30);not null;index" json:"kind"` // PURCHASE_REQUEST, JOB_ORDER
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Purpose     string          `gorm:"type:text" json:"purpose"`
	Department  string          `gorm:"type:varchar(100);not null;index" json:"department"`
	ReportType  string          `gorm:"type:varchar(20);not null" json:"report_type"` // Department or Division, immutable once set
	Status      string          `gorm:"type:varchar(30);not null;default:'DRAFT';index" json:"status"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`

	RequestedByID uuid.UUID `gorm:"type:uuid;not null;index" json:"requested_by_id"`
	Requester     *User     `gorm:"foreignKey:RequestedByID" json:"requester,omitempty"`

	// Ordered, append-only audit trail of stage decisions
	Approvals []ApprovalRecord `gorm:"foreignKey:RequestID" json:"approvals,omitempty"`

	// Pending-closure bookkeeping. ClosurePriorStatus holds the status to revert
	// to if the requester cancels the pending closure.
	PendingClosureDate          *time.Time `json:"pending_closure_date"`
	PendingClosureRequestedByID *uuid.UUID `gorm:"type:uuid" json:"pending_closure_requested_by_id"`
	ClosurePriorStatus          string     `gorm:"type:varchar(30)" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ApprovalRecord is a single stage decision on a request. Once written with a
// non-nil Action it is never mutated or removed.
type ApprovalRecord struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"request_id"`
	Stage        string     `gorm:"type:varchar(30);not null" json:"stage"`
	Action       *string    `gorm:"type:varchar(20)" json:"action"` // nil while pending
	ApproverID   *uuid.UUID `gorm:"type:uuid" json:"approver_id"`
	Approver     *User      `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	ApproverName string     `gorm:"type:varchar(255)" json:"approver_name"`
	Remarks      string     `gorm:"type:text" json:"remarks"`
	ActionDate   *time.Time `json:"action_date"`
	CreatedAt    time.Time  `json:"created_at"`
}
