package lifecycle

import (
	"errors"
	"testing"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
)

var (
	staff      = Actor{ID: uuid.New()}
	supervisor = Actor{ID: uuid.New(), IsSupervisor: true}
	admin      = Actor{ID: uuid.New(), IsAdmin: true}
	ceo        = Actor{ID: uuid.New(), IsCEO: true}
)

func deptRequest(status string) *model.Request {
	return &model.Request{
		ID:            uuid.New(),
		Kind:          model.KindPurchaseRequest,
		ReportType:    model.ReportTypeDepartment,
		Status:        status,
		RequestedByID: staff.ID,
	}
}

func divRequest(status string) *model.Request {
	return &model.Request{
		ID:            uuid.New(),
		Kind:          model.KindJobOrder,
		ReportType:    model.ReportTypeDivision,
		Status:        status,
		RequestedByID: supervisor.ID,
	}
}

func rejectRecord(stage string, at time.Time) model.ApprovalRecord {
	action := model.ApprovalActionReject
	return model.ApprovalRecord{Stage: stage, Action: &action, ActionDate: &at}
}

func TestCurrentStageFixedMapping(t *testing.T) {
	// Pins the exact status→stage pairing from the system of record,
	// including the DIVISION_HEAD/ADMIN offset. A deliberate fix must
	// change this test.
	cases := map[string]string{
		model.StatusDraft:                model.StageDepartmentHead,
		model.StatusForEndorsement:       model.StageDepartmentHead,
		model.StatusForAdminVerification: model.StageDivisionHead,
		model.StatusForCeoApproval:       model.StageAdmin,
		model.StatusForRequisition:       model.StageCeoOrAvp,
		model.StatusApproved:             "",
		model.StatusCancelled:            "",
		model.StatusPendingClosure:       "",
		model.StatusClosed:               "",
	}
	for status, want := range cases {
		req := deptRequest(status)
		// Stale approval history must not affect in-flight mapping.
		req.Approvals = []model.ApprovalRecord{rejectRecord(model.StageAdmin, time.Now())}
		if got := CurrentStage(req); got != want {
			t.Fatalf("CurrentStage(%s) = %q, want %q", status, got, want)
		}
	}
}

func TestCurrentStageRejectedUsesLatestRejectRecord(t *testing.T) {
	req := deptRequest(model.StatusRejected)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	req.Approvals = []model.ApprovalRecord{
		rejectRecord(model.StageDivisionHead, base),
		rejectRecord(model.StageCeoOrAvp, base.Add(48*time.Hour)),
		rejectRecord(model.StageAdmin, base.Add(24*time.Hour)),
	}
	if got := CurrentStage(req); got != model.StageCeoOrAvp {
		t.Fatalf("expected latest reject stage %s, got %q", model.StageCeoOrAvp, got)
	}
}

func TestCurrentStageRejectedWithoutRejectRecord(t *testing.T) {
	req := deptRequest(model.StatusRejected)
	approve := model.ApprovalActionApprove
	at := time.Now()
	req.Approvals = []model.ApprovalRecord{
		{Stage: model.StageDivisionHead, Action: &approve, ActionDate: &at},
		{Stage: model.StageAdmin}, // pending, no action
	}
	if got := CurrentStage(req); got != "" {
		t.Fatalf("malformed rejected request should map to no stage, got %q", got)
	}
}

func TestCanEditOrResubmit(t *testing.T) {
	cases := []struct {
		name  string
		req   *model.Request
		actor Actor
		want  bool
	}{
		{"department draft, staff", deptRequest(model.StatusDraft), staff, true},
		{"department rejected, staff", deptRequest(model.StatusRejected), staff, true},
		{"department in flight", deptRequest(model.StatusForEndorsement), staff, false},
		{"division draft, owning supervisor", divRequest(model.StatusDraft), supervisor, true},
		{"division rejected, owning supervisor", divRequest(model.StatusRejected), supervisor, true},
		{"division draft, other supervisor", divRequest(model.StatusDraft), Actor{ID: uuid.New(), IsSupervisor: true}, false},
		{"division draft, owner without supervisor role", func() *model.Request {
			r := divRequest(model.StatusDraft)
			r.RequestedByID = staff.ID
			return r
		}(), staff, false},
		{"closed request", deptRequest(model.StatusClosed), admin, false},
	}
	for _, tc := range cases {
		if got := CanEditOrResubmit(tc.req, tc.actor); got != tc.want {
			t.Fatalf("%s: CanEditOrResubmit = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanApprove(t *testing.T) {
	cases := []struct {
		name  string
		req   *model.Request
		actor Actor
		stage string
		want  bool
	}{
		{"dept head on draft, supervisor", deptRequest(model.StatusDraft), supervisor, model.StageDepartmentHead, true},
		{"dept head on rejected, supervisor", deptRequest(model.StatusRejected), supervisor, model.StageDepartmentHead, true},
		{"dept head, plain user", deptRequest(model.StatusDraft), staff, model.StageDepartmentHead, false},
		{"dept head on division request", divRequest(model.StatusDraft), supervisor, model.StageDepartmentHead, false},
		{"division head on endorsement", divRequest(model.StatusForEndorsement), supervisor, model.StageDivisionHead, true},
		{"division head on department request", deptRequest(model.StatusForEndorsement), supervisor, model.StageDivisionHead, false},
		{"division head, wrong status", divRequest(model.StatusDraft), supervisor, model.StageDivisionHead, false},
		{"admin on verification", deptRequest(model.StatusForAdminVerification), admin, model.StageAdmin, true},
		{"non-admin on verification", deptRequest(model.StatusForAdminVerification), supervisor, model.StageAdmin, false},
		{"ceo on ceo approval", deptRequest(model.StatusForCeoApproval), ceo, model.StageCeoOrAvp, true},
		{"admin on ceo approval", deptRequest(model.StatusForCeoApproval), admin, model.StageCeoOrAvp, false},
		{"unknown stage", deptRequest(model.StatusDraft), admin, "WAREHOUSE", false},
	}
	for _, tc := range cases {
		if got := CanApprove(tc.req, tc.actor, tc.stage); got != tc.want {
			t.Fatalf("%s: CanApprove = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTransitionDepartmentApprove(t *testing.T) {
	req := deptRequest(model.StatusDraft)
	now := time.Now()

	if err := Transition(req, model.StageDepartmentHead, model.ApprovalActionApprove, supervisor, "R. Santos", "ok to endorse", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusForEndorsement {
		t.Fatalf("expected status %s, got %s", model.StatusForEndorsement, req.Status)
	}
	if len(req.Approvals) != 1 {
		t.Fatalf("expected 1 approval record, got %d", len(req.Approvals))
	}
	rec := req.Approvals[0]
	if rec.Stage != model.StageDepartmentHead || rec.Action == nil || *rec.Action != model.ApprovalActionApprove {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ApproverID == nil || *rec.ApproverID != supervisor.ID || rec.ApproverName != "R. Santos" {
		t.Fatalf("approver not recorded: %+v", rec)
	}
	if rec.ActionDate == nil || !rec.ActionDate.Equal(now) {
		t.Fatalf("action date not recorded: %+v", rec)
	}
}

func TestTransitionDivisionReject(t *testing.T) {
	req := divRequest(model.StatusForEndorsement)
	now := time.Now()

	if err := Transition(req, model.StageDivisionHead, model.ApprovalActionReject, supervisor, "", "incomplete canvass", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusRejected {
		t.Fatalf("expected status %s, got %s", model.StatusRejected, req.Status)
	}
	if got := CurrentStage(req); got != model.StageDivisionHead {
		t.Fatalf("expected current stage %s, got %q", model.StageDivisionHead, got)
	}
}

func TestTransitionAdminAdvancesToCeoApproval(t *testing.T) {
	req := deptRequest(model.StatusForAdminVerification)
	if err := Transition(req, model.StageAdmin, model.ApprovalActionApprove, admin, "", "", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusForCeoApproval {
		t.Fatalf("expected status %s, got %s", model.StatusForCeoApproval, req.Status)
	}
}

func TestTransitionFullChain(t *testing.T) {
	req := deptRequest(model.StatusDraft)
	now := time.Now()
	steps := []struct {
		stage string
		actor Actor
		want  string
	}{
		{model.StageDepartmentHead, supervisor, model.StatusForEndorsement},
		{model.StageDivisionHead, supervisor, model.StatusForAdminVerification},
		{model.StageAdmin, admin, model.StatusForCeoApproval},
		{model.StageCeoOrAvp, ceo, model.StatusForRequisition},
		{model.StageFinance, admin, model.StatusApproved},
	}
	// Division-head endorsement requires a Division request; this chain
	// runs the department flow, so swap report type at that step.
	for i, step := range steps {
		if step.stage == model.StageDivisionHead {
			req.ReportType = model.ReportTypeDivision
		} else {
			req.ReportType = model.ReportTypeDepartment
		}
		if err := Transition(req, step.stage, model.ApprovalActionApprove, step.actor, "", "", now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("step %d (%s): %v", i, step.stage, err)
		}
		if req.Status != step.want {
			t.Fatalf("step %d: expected %s, got %s", i, step.want, req.Status)
		}
	}
	if len(req.Approvals) != len(steps) {
		t.Fatalf("expected %d records, got %d", len(steps), len(req.Approvals))
	}
}

func TestTransitionAppendOnly(t *testing.T) {
	req := divRequest(model.StatusForEndorsement)
	now := time.Now()
	if err := Transition(req, model.StageDivisionHead, model.ApprovalActionApprove, supervisor, "A", "first", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := req.Approvals[0]

	if err := Transition(req, model.StageAdmin, model.ApprovalActionApprove, admin, "B", "second", now.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Approvals) != 2 {
		t.Fatalf("expected 2 records, got %d", len(req.Approvals))
	}
	got := req.Approvals[0]
	if got.Stage != first.Stage || *got.Action != *first.Action || got.Remarks != first.Remarks ||
		*got.ApproverID != *first.ApproverID || !got.ActionDate.Equal(*first.ActionDate) {
		t.Fatalf("prior record mutated: before %+v, after %+v", first, got)
	}
}

func TestTransitionGuardRejected(t *testing.T) {
	req := deptRequest(model.StatusDraft)
	err := Transition(req, model.StageAdmin, model.ApprovalActionApprove, admin, "", "", time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if req.Status != model.StatusDraft || len(req.Approvals) != 0 {
		t.Fatalf("failed transition must not touch the request: %+v", req)
	}
}

func TestTransitionForbiddenActor(t *testing.T) {
	req := deptRequest(model.StatusForAdminVerification)
	err := Transition(req, model.StageAdmin, model.ApprovalActionApprove, supervisor, "", "", time.Now())
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if req.Status != model.StatusForAdminVerification || len(req.Approvals) != 0 {
		t.Fatalf("forbidden transition must not touch the request: %+v", req)
	}
}

func TestDoubleRejectFailsSecondCall(t *testing.T) {
	req := divRequest(model.StatusForEndorsement)
	now := time.Now()
	if err := Transition(req, model.StageDivisionHead, model.ApprovalActionReject, supervisor, "", "", now); err != nil {
		t.Fatalf("first reject: %v", err)
	}
	err := Transition(req, model.StageDivisionHead, model.ApprovalActionReject, supervisor, "", "", now.Add(time.Second))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second reject should fail with ErrInvalidTransition, got %v", err)
	}
	if req.Status != model.StatusRejected || len(req.Approvals) != 1 {
		t.Fatalf("second reject must be rejected cleanly: %+v", req)
	}
}

func TestDepartmentHeadCannotReject(t *testing.T) {
	req := deptRequest(model.StatusDraft)
	err := Transition(req, model.StageDepartmentHead, model.ApprovalActionReject, supervisor, "", "", time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelOnlyAtDepartmentHead(t *testing.T) {
	req := deptRequest(model.StatusDraft)
	if err := Transition(req, model.StageDepartmentHead, model.ApprovalActionCancel, supervisor, "", "no longer needed", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusCancelled {
		t.Fatalf("expected status %s, got %s", model.StatusCancelled, req.Status)
	}

	other := divRequest(model.StatusForEndorsement)
	err := Transition(other, model.StageDivisionHead, model.ApprovalActionCancel, supervisor, "", "", time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel outside department head should fail, got %v", err)
	}
}

func TestResubmitAfterRejection(t *testing.T) {
	req := deptRequest(model.StatusRejected)
	req.Approvals = []model.ApprovalRecord{rejectRecord(model.StageDivisionHead, time.Now())}
	if err := Transition(req, model.StageDepartmentHead, model.ApprovalActionApprove, supervisor, "", "resubmitted", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusForEndorsement {
		t.Fatalf("expected status %s, got %s", model.StatusForEndorsement, req.Status)
	}
	if len(req.Approvals) != 2 {
		t.Fatalf("resubmission must append, not rewrite: %d records", len(req.Approvals))
	}
}

func TestClosureFlow(t *testing.T) {
	req := deptRequest(model.StatusForRequisition)
	now := time.Date(2026, 7, 10, 14, 0, 0, 0, time.UTC)

	if err := InitiateClosure(req, admin, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusPendingClosure {
		t.Fatalf("expected status %s, got %s", model.StatusPendingClosure, req.Status)
	}
	if req.PendingClosureRequestedByID == nil || *req.PendingClosureRequestedByID != admin.ID {
		t.Fatalf("initiator not recorded: %+v", req)
	}
	if req.PendingClosureDate == nil || !req.PendingClosureDate.Equal(now) {
		t.Fatalf("closure date not recorded: %+v", req)
	}

	if err := CancelPendingClosure(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusForRequisition {
		t.Fatalf("expected revert to %s, got %s", model.StatusForRequisition, req.Status)
	}
	if req.PendingClosureDate != nil || req.PendingClosureRequestedByID != nil {
		t.Fatalf("pending-closure fields not cleared: %+v", req)
	}
}

func TestConfirmClosure(t *testing.T) {
	req := deptRequest(model.StatusForRequisition)
	now := time.Now()
	if err := InitiateClosure(req, admin, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ConfirmClosure(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusClosed {
		t.Fatalf("expected status %s, got %s", model.StatusClosed, req.Status)
	}
	if req.PendingClosureDate != nil || req.PendingClosureRequestedByID != nil {
		t.Fatalf("pending-closure fields not cleared: %+v", req)
	}
}

func TestClosureGuards(t *testing.T) {
	if err := InitiateClosure(deptRequest(model.StatusForRequisition), supervisor, time.Now()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin initiation should be forbidden, got %v", err)
	}
	if err := InitiateClosure(deptRequest(model.StatusDraft), admin, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("closure from draft should be invalid, got %v", err)
	}
	if err := ConfirmClosure(deptRequest(model.StatusForRequisition)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirm without pending closure should be invalid, got %v", err)
	}
	if err := CancelPendingClosure(deptRequest(model.StatusApproved)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel without pending closure should be invalid, got %v", err)
	}
}

func TestClosureRevertsToPriorStatus(t *testing.T) {
	req := deptRequest(model.StatusApproved)
	if err := InitiateClosure(req, admin, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CancelPendingClosure(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != model.StatusApproved {
		t.Fatalf("expected revert to %s, got %s", model.StatusApproved, req.Status)
	}
}

func TestClosureExpired(t *testing.T) {
	req := deptRequest(model.StatusForRequisition)
	start := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	if err := InitiateClosure(req, admin, start); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ClosureExpired(req, start.Add(AutoCloseAfter-time.Minute)) {
		t.Fatalf("closure should not expire before the 3-day window")
	}
	if !ClosureExpired(req, start.Add(AutoCloseAfter)) {
		t.Fatalf("closure should expire exactly at the 3-day window")
	}
	if ClosureExpired(deptRequest(model.StatusForRequisition), start.Add(240*time.Hour)) {
		t.Fatalf("non-pending request never expires")
	}
}

func TestInitialStatus(t *testing.T) {
	if got := InitialStatus(staff); got != model.StatusDraft {
		t.Fatalf("staff creation should start at %s, got %s", model.StatusDraft, got)
	}
	if got := InitialStatus(supervisor); got != model.StatusForEndorsement {
		t.Fatalf("supervisor creation should start at %s, got %s", model.StatusForEndorsement, got)
	}
}
