// Package lifecycle holds the approval-chain decision rules for procurement
// requests. It is pure: every function computes over a Request snapshot and an
// Actor, mutates only the passed request, and touches no storage. The service
// layer persists the outcome.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
)

// AutoCloseAfter is the window a requester has to respond to a pending
// closure before the sweeper closes the request on their behalf.
const AutoCloseAfter = 72 * time.Hour

var (
	// ErrInvalidTransition means the request's status does not permit the
	// attempted operation.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrForbidden means the acting user's role does not permit the
	// attempted operation.
	ErrForbidden = errors.New("actor not permitted")
)

// Actor is the acting user, passed explicitly into every decision instead of
// being read from ambient session state.
type Actor struct {
	ID           uuid.UUID
	IsAdmin      bool
	IsCEO        bool
	IsSupervisor bool
}

// ActorFromUser derives role flags from a persisted user.
func ActorFromUser(u *model.User) Actor {
	return Actor{
		ID:           u.ID,
		IsAdmin:      u.Role == model.RoleAdmin,
		IsCEO:        u.Role == model.RoleCEO,
		IsSupervisor: u.Role == model.RoleSupervisor,
	}
}

// plainUser reports whether the actor holds no elevated role at all.
func (a Actor) plainUser() bool {
	return !a.IsAdmin && !a.IsCEO && !a.IsSupervisor
}

// stageGates maps each approval stage to the statuses a request must be in
// for that stage to act, and to the status an approval advances to.
type stageGate struct {
	from    []string
	approve string
}

var stageGates = map[string]stageGate{
	model.StageDepartmentHead: {from: []string{model.StatusDraft, model.StatusRejected}, approve: model.StatusForEndorsement},
	model.StageDivisionHead:   {from: []string{model.StatusForEndorsement}, approve: model.StatusForAdminVerification},
	model.StageAdmin:          {from: []string{model.StatusForAdminVerification}, approve: model.StatusForCeoApproval},
	model.StageCeoOrAvp:       {from: []string{model.StatusForCeoApproval}, approve: model.StatusForRequisition},
	model.StageFinance:        {from: []string{model.StatusForRequisition}, approve: model.StatusApproved},
}

// statusStage is the display mapping from an in-flight status to the stage
// shown as currently active. The FOR_ADMIN_VERIFICATION → DIVISION_HEAD and
// FOR_CEO_APPROVAL → ADMIN pairings are carried over from the system of
// record as observed; do not "fix" them without the owner's sign-off.
var statusStage = map[string]string{
	model.StatusDraft:                model.StageDepartmentHead,
	model.StatusForEndorsement:       model.StageDepartmentHead,
	model.StatusForAdminVerification: model.StageDivisionHead,
	model.StatusForCeoApproval:       model.StageAdmin,
	model.StatusForRequisition:       model.StageCeoOrAvp,
}

// CurrentStage computes the display stage for a request. For rejected
// requests it is the stage of the most recent reject record; for terminal
// statuses it is empty. Never stored, always derived.
func CurrentStage(req *model.Request) string {
	if req.Status == model.StatusRejected {
		return latestRejectStage(req.Approvals)
	}
	return statusStage[req.Status]
}

func latestRejectStage(records []model.ApprovalRecord) string {
	stage := ""
	var latest time.Time
	for _, r := range records {
		if r.Action == nil || *r.Action != model.ApprovalActionReject || r.ActionDate == nil {
			continue
		}
		if stage == "" || r.ActionDate.After(latest) {
			stage = r.Stage
			latest = *r.ActionDate
		}
	}
	return stage
}

// CanEditOrResubmit reports whether the actor may amend an unsubmitted or
// bounced request: only the originating department, or a supervisor acting as
// their own requester.
func CanEditOrResubmit(req *model.Request, actor Actor) bool {
	if req.Status != model.StatusDraft && req.Status != model.StatusRejected {
		return false
	}
	if req.ReportType == model.ReportTypeDepartment {
		return true
	}
	return req.RequestedByID == actor.ID && actor.IsSupervisor
}

// CanApprove reports whether the actor may act on the request at the given
// stage right now. Status and role are both checked; this is the single
// source for button visibility and for the Transition guard.
func CanApprove(req *model.Request, actor Actor, stage string) bool {
	gate, ok := stageGates[stage]
	if !ok {
		return false
	}
	return statusMatches(req.Status, gate.from) && actorAllowedAtStage(req, actor, stage)
}

func statusMatches(status string, from []string) bool {
	for _, s := range from {
		if s == status {
			return true
		}
	}
	return false
}

func actorAllowedAtStage(req *model.Request, actor Actor, stage string) bool {
	switch stage {
	case model.StageDepartmentHead:
		return req.ReportType == model.ReportTypeDepartment && !actor.plainUser()
	case model.StageDivisionHead:
		return req.ReportType == model.ReportTypeDivision && !actor.plainUser()
	case model.StageAdmin:
		return actor.IsAdmin
	case model.StageCeoOrAvp:
		return actor.IsCEO
	case model.StageFinance:
		return actor.IsAdmin || actor.IsCEO
	default:
		return false
	}
}

// Transition applies one stage decision to the request: it validates the
// status gate and the actor's role, appends exactly one approval record, and
// advances (or short-circuits) the status. On error the request is untouched.
func Transition(req *model.Request, stage, action string, actor Actor, actorName, remarks string, now time.Time) error {
	gate, ok := stageGates[stage]
	if !ok {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, stage)
	}
	if !statusMatches(req.Status, gate.from) {
		return fmt.Errorf("%w: stage %s cannot act on status %s", ErrInvalidTransition, stage, req.Status)
	}
	if !actorAllowedAtStage(req, actor, stage) {
		return fmt.Errorf("%w: stage %s", ErrForbidden, stage)
	}

	var next string
	switch action {
	case model.ApprovalActionApprove:
		next = gate.approve
	case model.ApprovalActionReject:
		// The department head gate resubmits or cancels; it has nothing to reject.
		if stage == model.StageDepartmentHead {
			return fmt.Errorf("%w: stage %s cannot reject", ErrInvalidTransition, stage)
		}
		next = model.StatusRejected
	case model.ApprovalActionCancel:
		if stage != model.StageDepartmentHead {
			return fmt.Errorf("%w: stage %s cannot cancel", ErrInvalidTransition, stage)
		}
		next = model.StatusCancelled
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	act := action
	date := now
	req.Approvals = append(req.Approvals, model.ApprovalRecord{
		RequestID:    req.ID,
		Stage:        stage,
		Action:       &act,
		ApproverID:   &actor.ID,
		ApproverName: actorName,
		Remarks:      remarks,
		ActionDate:   &date,
	})
	req.Status = next
	return nil
}

// InitiateClosure marks a post-requisition request as awaiting requester
// closure. Admin only. The requester then has AutoCloseAfter to confirm or
// cancel before the sweeper closes it for them.
func InitiateClosure(req *model.Request, initiator Actor, now time.Time) error {
	if !initiator.IsAdmin {
		return fmt.Errorf("%w: closure is admin-initiated", ErrForbidden)
	}
	if req.Status != model.StatusForRequisition && req.Status != model.StatusApproved {
		return fmt.Errorf("%w: cannot initiate closure from status %s", ErrInvalidTransition, req.Status)
	}
	req.ClosurePriorStatus = req.Status
	req.Status = model.StatusPendingClosure
	req.PendingClosureDate = &now
	req.PendingClosureRequestedByID = &initiator.ID
	return nil
}

// ConfirmClosure finalizes a pending closure.
func ConfirmClosure(req *model.Request) error {
	if req.Status != model.StatusPendingClosure {
		return fmt.Errorf("%w: cannot confirm closure from status %s", ErrInvalidTransition, req.Status)
	}
	req.Status = model.StatusClosed
	clearPendingClosure(req)
	return nil
}

// CancelPendingClosure reverts a pending closure to the prior productive status.
func CancelPendingClosure(req *model.Request) error {
	if req.Status != model.StatusPendingClosure {
		return fmt.Errorf("%w: no pending closure on status %s", ErrInvalidTransition, req.Status)
	}
	prior := req.ClosurePriorStatus
	if prior == "" {
		prior = model.StatusForRequisition
	}
	req.Status = prior
	clearPendingClosure(req)
	return nil
}

// ClosureExpired reports whether a pending closure has outlived AutoCloseAfter.
func ClosureExpired(req *model.Request, now time.Time) bool {
	if req.Status != model.StatusPendingClosure || req.PendingClosureDate == nil {
		return false
	}
	return now.Sub(*req.PendingClosureDate) >= AutoCloseAfter
}

func clearPendingClosure(req *model.Request) {
	req.PendingClosureDate = nil
	req.PendingClosureRequestedByID = nil
	req.ClosurePriorStatus = ""
}

// InitialStatus is the status a freshly created request starts in: DRAFT for
// staff, FOR_ENDORSEMENT when the creator is already a supervisor.
func InitialStatus(creator Actor) string {
	if creator.IsSupervisor {
		return model.StatusForEndorsement
	}
	return model.StatusDraft
}
