package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateRequest  = "CREATE_REQUEST"
	ActionUpdateRequest  = "UPDATE_REQUEST"
	ActionSubmitRequest  = "SUBMIT_REQUEST"
	ActionEndorseRequest = "ENDORSE_REQUEST"
	ActionVerifyRequest  = "VERIFY_REQUEST"
	ActionApproveRequest = "APPROVE_REQUEST"
	ActionRejectRequest  = "REJECT_REQUEST"
	ActionCancelRequest  = "CANCEL_REQUEST"

	// Closure workflow actions
	ActionInitiateClosure = "INITIATE_CLOSURE"
	ActionConfirmClosure  = "CONFIRM_CLOSURE"
	ActionCancelClosure   = "CANCEL_PENDING_CLOSURE"
	ActionAutoClose       = "AUTO_CLOSE_REQUEST"

	// Slip and attachment actions
	ActionCreateSlip    = "CREATE_SLIP"
	ActionApproveSlip   = "APPROVE_SLIP"
	ActionRejectSlip    = "REJECT_SLIP"
	ActionAddAttachment = "ADD_ATTACHMENT"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated sweep
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/request no)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
