package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"procurement/internal/lifecycle"
	"procurement/internal/model"
	"procurement/internal/repository"
	ws "procurement/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateRequestDTO struct {
	Kind        string `json:"kind" binding:"required,oneof=PURCHASE_REQUEST JOB_ORDER"`
	Title       string `json:"title" binding:"required"`
	Purpose     string `json:"purpose"`
	Department  string `json:"department" binding:"required"`
	ReportType  string `json:"report_type" binding:"required,oneof=Department Division"`
	TotalAmount string `json:"total_amount"`
}

type UpdateRequestDTO struct {
	Title       string `json:"title"`
	Purpose     string `json:"purpose"`
	TotalAmount string `json:"total_amount"`
}

type DecisionDTO struct {
	Stage   string `json:"stage" binding:"required,oneof=DEPARTMENT_HEAD DIVISION_HEAD ADMIN CEO_OR_AVP FINANCE"`
	Action  string `json:"action" binding:"required,oneof=APPROVE REJECT CANCEL"`
	Remarks string `json:"remarks"`
}

type AttachmentDTO struct {
	FileName string `json:"file_name" binding:"required"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	URL      string `json:"url" binding:"required"`
}

type RequestListFilter struct {
	Status     string
	Kind       string
	Department string
	Page       int
	Limit      int
}

type ApprovalRecordResponse struct {
	Stage        string  `json:"stage"`
	Action       *string `json:"action"`
	ApproverName string  `json:"approver_name"`
	Remarks      string  `json:"remarks"`
	ActionDate   *string `json:"action_date"`
}

type RequestResponse struct {
	ID            string                   `json:"id"`
	RequestNo     string                   `json:"request_no"`
	Kind          string                   `json:"kind"`
	Title         string                   `json:"title"`
	Purpose       string                   `json:"purpose"`
	Department    string                   `json:"department"`
	ReportType    string                   `json:"report_type"`
	Status        string                   `json:"status"`
	CurrentStage  string                   `json:"current_stage"`
	TotalAmount   string                   `json:"total_amount"`
	RequestedBy   string                   `json:"requested_by"`
	RequesterName string                   `json:"requester_name"`
	Approvals     []ApprovalRecordResponse `json:"approvals,omitempty"`
	CanEdit       bool                     `json:"can_edit"`

	PendingClosureDate *string `json:"pending_closure_date,omitempty"`
	ClosureDeadline    *string `json:"closure_deadline,omitempty"`
	ClosureNotice      string  `json:"closure_notice,omitempty"`

	CreatedAt string `json:"created_at"`
}

// StatusEvent is the websocket payload emitted on every status change.
type StatusEvent struct {
	Event     string `json:"event"`
	RequestID string `json:"request_id"`
	RequestNo string `json:"request_no"`
	Status    string `json:"status"`
	Stage     string `json:"stage,omitempty"`
	Action    string `json:"action,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
}

// --- Interface ---

type RequestService interface {
	Create(ctx context.Context, actorID string, dto CreateRequestDTO) (RequestResponse, error)
	Get(ctx context.Context, id, actorID string) (RequestResponse, error)
	List(ctx context.Context, filter RequestListFilter) ([]RequestResponse, int64, error)
	Update(ctx context.Context, id, actorID string, dto UpdateRequestDTO) (RequestResponse, error)
	Decide(ctx context.Context, id, actorID string, dto DecisionDTO) (RequestResponse, error)
	InitiateClosure(ctx context.Context, id, actorID string) (RequestResponse, error)
	ConfirmClosure(ctx context.Context, id, actorID string) (RequestResponse, error)
	CancelPendingClosure(ctx context.Context, id, actorID string) (RequestResponse, error)
	AddAttachment(ctx context.Context, id, actorID string, dto AttachmentDTO) error
	ListAttachments(ctx context.Context, id string) ([]model.Attachment, error)
	SweepExpiredClosures(ctx context.Context) (int, error)
}

type requestService struct {
	txManager repository.TransactionManager
	requests  repository.RequestRepository
	users     repository.UserRepository
	audits    repository.AuditRepository
	hub       *ws.Hub
}

func NewRequestService(
	txManager repository.TransactionManager,
	requests repository.RequestRepository,
	users repository.UserRepository,
	audits repository.AuditRepository,
	hub *ws.Hub,
) RequestService {
	return &requestService{
		txManager: txManager,
		requests:  requests,
		users:     users,
		audits:    audits,
		hub:       hub,
	}
}

// --- Implementation ---

func (s *requestService) Create(ctx context.Context, actorID string, dto CreateRequestDTO) (RequestResponse, error) {
	user, actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return RequestResponse{}, err
	}

	amount := decimal.Zero
	if dto.TotalAmount != "" {
		if amount, err = decimal.NewFromString(dto.TotalAmount); err != nil {
			return RequestResponse{}, fmt.Errorf("invalid total_amount: %w", err)
		}
	}

	req := model.Request{
		Kind:          dto.Kind,
		Title:         dto.Title,
		Purpose:       dto.Purpose,
		Department:    dto.Department,
		ReportType:    dto.ReportType,
		Status:        lifecycle.InitialStatus(actor),
		TotalAmount:   amount,
		RequestedByID: user.ID,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		no, numErr := s.nextRequestNo(txCtx, dto.Kind)
		if numErr != nil {
			return numErr
		}
		req.RequestNo = no

		if createErr := s.requests.Create(txCtx, &req); createErr != nil {
			return fmt.Errorf("failed to create request: %w", createErr)
		}
		return s.writeAudit(txCtx, &user.ID, model.ActionCreateRequest, &req, map[string]interface{}{
			"kind":        req.Kind,
			"report_type": req.ReportType,
			"status":      req.Status,
		})
	})
	if err != nil {
		return RequestResponse{}, err
	}

	return s.reload(ctx, req.ID, actor)
}

func (s *requestService) Get(ctx context.Context, id, actorID string) (RequestResponse, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, fmt.Errorf("invalid request id: %w", err)
	}
	_, actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return RequestResponse{}, err
	}
	return s.reload(ctx, reqID, actor)
}

func (s *requestService) List(ctx context.Context, filter RequestListFilter) ([]RequestResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	requests, total, err := s.requests.List(ctx, repository.RequestFilter{
		Status:     filter.Status,
		Kind:       filter.Kind,
		Department: filter.Department,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch requests: %w", err)
	}

	result := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, toRequestResponse(&requests[i], lifecycle.Actor{}))
	}
	return result, total, nil
}

func (s *requestService) Update(ctx context.Context, id, actorID string, dto UpdateRequestDTO) (RequestResponse, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, fmt.Errorf("invalid request id: %w", err)
	}
	user, actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return RequestResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, findErr := s.requests.FindByID(txCtx, reqID)
		if findErr != nil {
			return fmt.Errorf("request not found: %w", findErr)
		}
		if !lifecycle.CanEditOrResubmit(req, actor) {
			return fmt.Errorf("%w: request %s is not editable by this user", lifecycle.ErrForbidden, req.RequestNo)
		}

		if dto.Title != "" {
			req.Title = dto.Title
		}
		if dto.Purpose != "" {
			req.Purpose = dto.Purpose
		}
		if dto.TotalAmount != "" {
			amount, parseErr := decimal.NewFromString(dto.TotalAmount)
			if parseErr != nil {
				return fmt.Errorf("invalid total_amount: %w", parseErr)
			}
			req.TotalAmount = amount
		}

		if updateErr := s.requests.Update(txCtx, req); updateErr != nil {
			return fmt.Errorf("failed to update request: %w", updateErr)
		}
		return s.writeAudit(txCtx, &user.ID, model.ActionUpdateRequest, req, nil)
	})
	if err != nil {
		return RequestResponse{}, err
	}

	return s.reload(ctx, reqID, actor)
}

// Decide runs one lifecycle transition inside a transaction: guard, append
// exactly one approval record, advance status, audit, broadcast. A failed
// guard rolls everything back, so Status and Approvals never change partially.
func (s *requestService) Decide(ctx context.Context, id, actorID string, dto DecisionDTO) (RequestResponse, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, fmt.Errorf("invalid request id: %w", err)
	}
	user, actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return RequestResponse{}, err
	}

	var event StatusEvent
	var snapshot *model.Request
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, findErr := s.requests.FindByID(txCtx, reqID)
		if findErr != nil {
			return fmt.Errorf("request not found: %w", findErr)
		}

		before := len(req.Approvals)
		if trErr := lifecycle.Transition(req, dto.Stage, dto.Action, actor, user.FullName, dto.Remarks, time.Now()); trErr != nil {
			return trErr
		}

		// Insert through the slice element so the generated ID lands back in
		// req.Approvals; the following Save then upserts instead of inserting
		// the record a second time.
		if appendErr := s.requests.AppendApproval(txCtx, &req.Approvals[before]); appendErr != nil {
			return fmt.Errorf("failed to append approval record: %w", appendErr)
		}
		if updateErr := s.requests.Update(txCtx, req); updateErr != nil {
			return fmt.Errorf("failed to update request: %w", updateErr)
		}

		// A department-head cancel removes the request for good.
		if req.Status == model.StatusCancelled {
			if delErr := s.requests.SoftDelete(txCtx, req.ID); delErr != nil {
				return fmt.Errorf("failed to remove cancelled request: %w", delErr)
			}
		}

		if auditErr := s.writeAudit(txCtx, &user.ID, auditActionFor(dto.Stage, dto.Action), req, map[string]interface{}{
			"stage":   dto.Stage,
			"action":  dto.Action,
			"status":  req.Status,
			"remarks": dto.Remarks,
		}); auditErr != nil {
			return auditErr
		}

		event = StatusEvent{
			Event:     "request_status_changed",
			RequestID: req.ID.String(),
			RequestNo: req.RequestNo,
			Status:    req.Status,
			Stage:     dto.Stage,
			Action:    dto.Action,
			ActorName: user.FullName,
		}
		snapshot = req
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.broadcast(event)
	// A cancelled request is soft-deleted and can no longer be reloaded.
	if snapshot.Status == model.StatusCancelled {
		return toRequestResponse(snapshot, actor), nil
	}
	return s.reload(ctx, reqID, actor)
}

func (s *requestService) InitiateClosure(ctx context.Context, id, actorID string) (RequestResponse, error) {
	return s.closureOp(ctx, id, actorID, model.ActionInitiateClosure, func(req *model.Request, actor lifecycle.Actor) error {
		return lifecycle.InitiateClosure(req, actor, time.Now())
	})
}

func (s *requestService) ConfirmClosure(ctx context.Context, id, actorID string) (RequestResponse, error) {
	return s.closureOp(ctx, id, actorID, model.ActionConfirmClosure, func(req *model.Request, _ lifecycle.Actor) error {
		return lifecycle.ConfirmClosure(req)
	})
}

func (s *requestService) CancelPendingClosure(ctx context.Context, id, actorID string) (RequestResponse, error) {
	return s.closureOp(ctx, id, actorID, model.ActionCancelClosure, func(req *model.Request, _ lifecycle.Actor) error {
		return lifecycle.CancelPendingClosure(req)
	})
}

func (s *requestService) closureOp(ctx context.Context, id, actorID, auditAction string, op func(*model.Request, lifecycle.Actor) error) (RequestResponse, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return RequestResponse{}, fmt.Errorf("invalid request id: %w", err)
	}
	user, actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return RequestResponse{}, err
	}

	var event StatusEvent
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, findErr := s.requests.FindByID(txCtx, reqID)
		if findErr != nil {
			return fmt.Errorf("request not found: %w", findErr)
		}
		if opErr := op(req, actor); opErr != nil {
			return opErr
		}
		if updateErr := s.requests.Update(txCtx, req); updateErr != nil {
			return fmt.Errorf("failed to update request: %w", updateErr)
		}
		if auditErr := s.writeAudit(txCtx, &user.ID, auditAction, req, map[string]interface{}{
			"status": req.Status,
		}); auditErr != nil {
			return auditErr
		}
		event = StatusEvent{
			Event:     "request_status_changed",
			RequestID: req.ID.String(),
			RequestNo: req.RequestNo,
			Status:    req.Status,
			ActorName: user.FullName,
		}
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.broadcast(event)
	return s.reload(ctx, reqID, actor)
}

func (s *requestService) AddAttachment(ctx context.Context, id, actorID string, dto AttachmentDTO) error {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid request id: %w", err)
	}
	user, _, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, findErr := s.requests.FindByID(txCtx, reqID)
		if findErr != nil {
			return fmt.Errorf("request not found: %w", findErr)
		}
		att := model.Attachment{
			RequestID:    req.ID,
			FileName:     dto.FileName,
			MimeType:     dto.MimeType,
			FileSize:     dto.FileSize,
			URL:          dto.URL,
			UploadedByID: user.ID,
		}
		if createErr := s.requests.CreateAttachment(txCtx, &att); createErr != nil {
			return fmt.Errorf("failed to attach file: %w", createErr)
		}
		return s.writeAudit(txCtx, &user.ID, model.ActionAddAttachment, req, map[string]interface{}{
			"file_name": dto.FileName,
			"file_size": dto.FileSize,
		})
	})
}

func (s *requestService) ListAttachments(ctx context.Context, id string) ([]model.Attachment, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid request id: %w", err)
	}
	return s.requests.ListAttachments(ctx, reqID)
}

// SweepExpiredClosures closes every pending closure whose 3-day response
// window has lapsed. Runs without an acting user; audit rows carry no user id.
func (s *requestService) SweepExpiredClosures(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-lifecycle.AutoCloseAfter)
	expired, err := s.requests.ListExpiredClosures(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired closures: %w", err)
	}

	closed := 0
	for i := range expired {
		req := &expired[i]
		err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if confErr := lifecycle.ConfirmClosure(req); confErr != nil {
				return confErr
			}
			if updateErr := s.requests.Update(txCtx, req); updateErr != nil {
				return fmt.Errorf("failed to close request %s: %w", req.RequestNo, updateErr)
			}
			return s.writeAudit(txCtx, nil, model.ActionAutoClose, req, map[string]interface{}{
				"reason": "requester did not respond within 3 days",
			})
		})
		if err != nil {
			return closed, err
		}
		closed++
		s.broadcast(StatusEvent{
			Event:     "request_status_changed",
			RequestID: req.ID.String(),
			RequestNo: req.RequestNo,
			Status:    req.Status,
		})
	}
	return closed, nil
}

// --- Helpers ---

func (s *requestService) loadActor(ctx context.Context, actorID string) (*model.User, lifecycle.Actor, error) {
	user, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, lifecycle.Actor{}, errors.New("acting user not found")
	}
	return user, lifecycle.ActorFromUser(user), nil
}

func (s *requestService) reload(ctx context.Context, id uuid.UUID, actor lifecycle.Actor) (RequestResponse, error) {
	req, err := s.requests.FindByIDWithRelations(ctx, id)
	if err != nil {
		return RequestResponse{}, fmt.Errorf("failed to reload request: %w", err)
	}
	return toRequestResponse(req, actor), nil
}

func (s *requestService) writeAudit(ctx context.Context, userID *uuid.UUID, action string, req *model.Request, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   req.ID.String(),
		EntityName: req.RequestNo,
		Details:    string(payload),
	}
	if err := s.audits.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *requestService) broadcast(event StatusEvent) {
	if s.hub == nil || event.RequestID == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	// Non-blocking: a congested hub must never stall a request.
	select {
	case s.hub.Broadcast <- payload:
	default:
	}
}

func (s *requestService) nextRequestNo(ctx context.Context, kind string) (string, error) {
	prefix := "PR"
	if kind == model.KindJobOrder {
		prefix = "JO"
	}
	count, err := s.requests.CountToday(ctx, kind)
	if err != nil {
		return "", fmt.Errorf("failed to generate request number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, time.Now().Format("20060102"), count+1), nil
}

func auditActionFor(stage, action string) string {
	switch action {
	case model.ApprovalActionReject:
		return model.ActionRejectRequest
	case model.ApprovalActionCancel:
		return model.ActionCancelRequest
	}
	switch stage {
	case model.StageDepartmentHead:
		return model.ActionSubmitRequest
	case model.StageDivisionHead:
		return model.ActionEndorseRequest
	case model.StageAdmin:
		return model.ActionVerifyRequest
	default:
		return model.ActionApproveRequest
	}
}

func toRequestResponse(req *model.Request, actor lifecycle.Actor) RequestResponse {
	resp := RequestResponse{
		ID:           req.ID.String(),
		RequestNo:    req.RequestNo,
		Kind:         req.Kind,
		Title:        req.Title,
		Purpose:      req.Purpose,
		Department:   req.Department,
		ReportType:   req.ReportType,
		Status:       req.Status,
		CurrentStage: lifecycle.CurrentStage(req),
		TotalAmount:  req.TotalAmount.StringFixed(2),
		RequestedBy:  req.RequestedByID.String(),
		CanEdit:      lifecycle.CanEditOrResubmit(req, actor),
		CreatedAt:    req.CreatedAt.Format(time.RFC3339),
	}
	if req.Requester != nil {
		resp.RequesterName = req.Requester.FullName
	}
	for _, rec := range req.Approvals {
		item := ApprovalRecordResponse{
			Stage:        rec.Stage,
			Action:       rec.Action,
			ApproverName: rec.ApproverName,
			Remarks:      rec.Remarks,
		}
		if rec.ActionDate != nil {
			d := rec.ActionDate.Format(time.RFC3339)
			item.ActionDate = &d
		}
		resp.Approvals = append(resp.Approvals, item)
	}
	if req.Status == model.StatusPendingClosure && req.PendingClosureDate != nil {
		d := req.PendingClosureDate.Format(time.RFC3339)
		deadline := req.PendingClosureDate.Add(lifecycle.AutoCloseAfter).Format(time.RFC3339)
		resp.PendingClosureDate = &d
		resp.ClosureDeadline = &deadline
		resp.ClosureNotice = "This request will close automatically after 3 days if you do not respond."
	}
	return resp
}
