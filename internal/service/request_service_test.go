package service

import (
	"context"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type passthroughTxManager struct{}

func (passthroughTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type stubUserRepo struct {
	user       *model.User
	purgeCalls int
}

func (s *stubUserRepo) Create(ctx context.Context, u *model.User) error { return nil }
func (s *stubUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.user, nil
}
func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.user, nil
}
func (s *stubUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.user, nil
}
func (s *stubUserRepo) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	return nil, 0, nil
}
func (s *stubUserRepo) Update(ctx context.Context, u *model.User) error { return nil }
func (s *stubUserRepo) Delete(ctx context.Context, id string) error     { return nil }
func (s *stubUserRepo) CreateRefreshToken(ctx context.Context, t *model.RefreshToken) error {
	return nil
}
func (s *stubUserRepo) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	return nil, nil
}
func (s *stubUserRepo) DeleteRefreshToken(ctx context.Context, token string) error { return nil }
func (s *stubUserRepo) DeleteExpiredRefreshTokens(ctx context.Context) error {
	s.purgeCalls++
	return nil
}

// stubRequestRepo records how approval rows reach the persistence layer so
// tests can assert exactly one row is written per decision.
type stubRequestRepo struct {
	req         *model.Request
	appendCalls int
	idsAtUpdate []uuid.UUID
}

func (s *stubRequestRepo) Create(ctx context.Context, req *model.Request) error { return nil }
func (s *stubRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	return s.req, nil
}
func (s *stubRequestRepo) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	return s.req, nil
}
func (s *stubRequestRepo) List(ctx context.Context, filter repository.RequestFilter) ([]model.Request, int64, error) {
	return nil, 0, nil
}
func (s *stubRequestRepo) Update(ctx context.Context, req *model.Request) error {
	s.idsAtUpdate = s.idsAtUpdate[:0]
	for _, rec := range req.Approvals {
		s.idsAtUpdate = append(s.idsAtUpdate, rec.ID)
	}
	return nil
}
func (s *stubRequestRepo) AppendApproval(ctx context.Context, rec *model.ApprovalRecord) error {
	s.appendCalls++
	rec.ID = uuid.New()
	return nil
}
func (s *stubRequestRepo) SoftDelete(ctx context.Context, id uuid.UUID) error { return nil }
func (s *stubRequestRepo) ListExpiredClosures(ctx context.Context, before time.Time) ([]model.Request, error) {
	return nil, nil
}
func (s *stubRequestRepo) CountToday(ctx context.Context, kind string) (int64, error) {
	return 0, nil
}
func (s *stubRequestRepo) CreateAttachment(ctx context.Context, att *model.Attachment) error {
	return nil
}
func (s *stubRequestRepo) ListAttachments(ctx context.Context, requestID uuid.UUID) ([]model.Attachment, error) {
	return nil, nil
}

type stubAuditRepo struct{}

func (stubAuditRepo) Log(ctx context.Context, entry *model.AuditLog) error { return nil }
func (stubAuditRepo) List(ctx context.Context, page, limit int) ([]model.AuditLog, int64, error) {
	return nil, 0, nil
}

// A decision must leave exactly one new approval row behind. The insert goes
// through the slice element itself so the generated ID is visible to the
// subsequent request save; a zero-ID element there would be inserted again by
// gorm's association handling, doubling the record.
func TestDecidePersistsSingleApprovalRecord(t *testing.T) {
	supervisor := &model.User{
		ID:         uuid.New(),
		FullName:   "Dana Cruz",
		Department: "Engineering",
		Role:       model.RoleSupervisor,
	}
	req := &model.Request{
		ID:            uuid.New(),
		RequestNo:     "PR-20260830-00001",
		Kind:          model.KindPurchaseRequest,
		Department:    "Engineering",
		ReportType:    model.ReportTypeDepartment,
		Status:        model.StatusDraft,
		RequestedByID: supervisor.ID,
	}

	requests := &stubRequestRepo{req: req}
	users := &stubUserRepo{user: supervisor}
	svc := NewRequestService(passthroughTxManager{}, requests, users, stubAuditRepo{}, nil)

	_, err := svc.Decide(context.Background(), req.ID.String(), supervisor.ID.String(), DecisionDTO{
		Stage:   model.StageDepartmentHead,
		Action:  model.ApprovalActionApprove,
		Remarks: "proceed",
	})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	if requests.appendCalls != 1 {
		t.Fatalf("expected 1 approval insert, got %d", requests.appendCalls)
	}
	if len(req.Approvals) != 1 {
		t.Fatalf("expected 1 approval record on the request, got %d", len(req.Approvals))
	}
	if req.Approvals[0].ID == uuid.Nil {
		t.Fatalf("approval record ID was not backfilled into the request slice")
	}
	if len(requests.idsAtUpdate) != 1 || requests.idsAtUpdate[0] == uuid.Nil {
		t.Fatalf("request save saw approval IDs %v, want exactly one non-zero ID", requests.idsAtUpdate)
	}
}

func TestPurgeExpiredRefreshTokensDelegates(t *testing.T) {
	repo := &stubUserRepo{}
	svc := NewUserService(repo)

	if err := svc.PurgeExpiredRefreshTokens(context.Background()); err != nil {
		t.Fatalf("PurgeExpiredRefreshTokens failed: %v", err)
	}
	if repo.purgeCalls != 1 {
		t.Fatalf("expected 1 purge call, got %d", repo.purgeCalls)
	}
}
