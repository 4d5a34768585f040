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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateSlipDTO struct {
	Kind        string `json:"kind" binding:"required,oneof=REQUISITION PURCHASE_ORDER"`
	Particulars string `json:"particulars" binding:"required"`
	Supplier    string `json:"supplier"`
	Amount      string `json:"amount" binding:"required"`
}

type SlipActionDTO struct {
	Remarks string `json:"remarks"`
}

type SlipResponse struct {
	ID           string  `json:"id"`
	SlipNo       string  `json:"slip_no"`
	Kind         string  `json:"kind"`
	RequestID    string  `json:"request_id"`
	RequestNo    string  `json:"request_no,omitempty"`
	Particulars  string  `json:"particulars"`
	Supplier     string  `json:"supplier"`
	Amount       string  `json:"amount"`
	Approval     string  `json:"approval"`
	PreparedBy   string  `json:"prepared_by"`
	ApproverName string  `json:"approver_name,omitempty"`
	ActionDate   *string `json:"action_date"`
	Remarks      string  `json:"remarks"`
	CreatedAt    string  `json:"created_at"`
}

// --- Interface ---

type SlipService interface {
	CreateSlip(ctx context.Context, requestID, actorID string, dto CreateSlipDTO) (SlipResponse, error)
	ListSlips(ctx context.Context, requestID string) ([]SlipResponse, error)
	ApproveSlip(ctx context.Context, id, actorID string, dto SlipActionDTO) (SlipResponse, error)
	RejectSlip(ctx context.Context, id, actorID string, dto SlipActionDTO) (SlipResponse, error)
}

type slipService struct {
	txManager repository.TransactionManager
	slips     repository.SlipRepository
	requests  repository.RequestRepository
	users     repository.UserRepository
	audits    repository.AuditRepository
}

func NewSlipService(
	txManager repository.TransactionManager,
	slips repository.SlipRepository,
	requests repository.RequestRepository,
	users repository.UserRepository,
	audits repository.AuditRepository,
) SlipService {
	return &slipService{
		txManager: txManager,
		slips:     slips,
		requests:  requests,
		users:     users,
		audits:    audits,
	}
}

// --- Implementation ---

// CreateSlip registers a requisition or purchase-order slip against a request
// that has reached requisition.
func (s *slipService) CreateSlip(ctx context.Context, requestID, actorID string, dto CreateSlipDTO) (SlipResponse, error) {
	reqID, err := uuid.Parse(requestID)
	if err != nil {
		return SlipResponse{}, fmt.Errorf("invalid request id: %w", err)
	}
	user, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return SlipResponse{}, errors.New("acting user not found")
	}
	amount, err := decimal.NewFromString(dto.Amount)
	if err != nil {
		return SlipResponse{}, fmt.Errorf("invalid amount: %w", err)
	}

	var slip model.Slip
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, findErr := s.requests.FindByID(txCtx, reqID)
		if findErr != nil {
			return fmt.Errorf("request not found: %w", findErr)
		}
		if req.Status != model.StatusForRequisition {
			return fmt.Errorf("%w: slips require status %s, request is %s",
				lifecycle.ErrInvalidTransition, model.StatusForRequisition, req.Status)
		}

		no, numErr := s.nextSlipNo(txCtx, dto.Kind)
		if numErr != nil {
			return numErr
		}
		slip = model.Slip{
			SlipNo:       no,
			Kind:         dto.Kind,
			RequestID:    req.ID,
			Particulars:  dto.Particulars,
			Supplier:     dto.Supplier,
			Amount:       amount,
			Approval:     model.SlipPending,
			PreparedByID: user.ID,
		}
		if createErr := s.slips.Create(txCtx, &slip); createErr != nil {
			return fmt.Errorf("failed to create slip: %w", createErr)
		}
		return s.writeAudit(txCtx, user.ID, model.ActionCreateSlip, &slip, map[string]interface{}{
			"kind":   dto.Kind,
			"amount": amount.StringFixed(2),
		})
	})
	if err != nil {
		return SlipResponse{}, err
	}

	return s.reload(ctx, slip.ID)
}

func (s *slipService) ListSlips(ctx context.Context, requestID string) ([]SlipResponse, error) {
	reqID, err := uuid.Parse(requestID)
	if err != nil {
		return nil, fmt.Errorf("invalid request id: %w", err)
	}
	slips, err := s.slips.ListByRequest(ctx, reqID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch slips: %w", err)
	}
	result := make([]SlipResponse, 0, len(slips))
	for i := range slips {
		result = append(result, toSlipResponse(&slips[i]))
	}
	return result, nil
}

// ApproveSlip clears one slip. When the last pending requisition slip on a
// request is approved, the request itself takes the Finance approval and
// moves to APPROVED.
func (s *slipService) ApproveSlip(ctx context.Context, id, actorID string, dto SlipActionDTO) (SlipResponse, error) {
	return s.act(ctx, id, actorID, model.SlipApproved, dto.Remarks)
}

func (s *slipService) RejectSlip(ctx context.Context, id, actorID string, dto SlipActionDTO) (SlipResponse, error) {
	return s.act(ctx, id, actorID, model.SlipRejected, dto.Remarks)
}

func (s *slipService) act(ctx context.Context, id, actorID, decision, remarks string) (SlipResponse, error) {
	slipID, err := uuid.Parse(id)
	if err != nil {
		return SlipResponse{}, fmt.Errorf("invalid slip id: %w", err)
	}
	user, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return SlipResponse{}, errors.New("acting user not found")
	}
	actor := lifecycle.ActorFromUser(user)
	if !actor.IsAdmin && !actor.IsCEO {
		return SlipResponse{}, fmt.Errorf("%w: slip approval", lifecycle.ErrForbidden)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		slip, findErr := s.slips.FindByID(txCtx, slipID)
		if findErr != nil {
			return fmt.Errorf("slip not found: %w", findErr)
		}
		if slip.Approval != model.SlipPending {
			return fmt.Errorf("%w: slip is already %s", lifecycle.ErrInvalidTransition, slip.Approval)
		}

		now := time.Now()
		slip.Approval = decision
		slip.ApprovedByID = &user.ID
		slip.ActionDate = &now
		slip.Remarks = remarks
		if updateErr := s.slips.Update(txCtx, slip); updateErr != nil {
			return fmt.Errorf("failed to update slip: %w", updateErr)
		}

		auditAction := model.ActionApproveSlip
		if decision == model.SlipRejected {
			auditAction = model.ActionRejectSlip
		}
		if auditErr := s.writeAudit(txCtx, user.ID, auditAction, slip, map[string]interface{}{
			"decision": decision,
			"remarks":  remarks,
		}); auditErr != nil {
			return auditErr
		}

		if decision == model.SlipApproved && slip.Kind == model.SlipKindRequisition {
			return s.maybeFinalizeRequest(txCtx, slip.RequestID, user.FullName, actor)
		}
		return nil
	})
	if err != nil {
		return SlipResponse{}, err
	}

	return s.reload(ctx, slipID)
}

// maybeFinalizeRequest advances the parent request through the Finance gate
// once no pending requisition slips remain.
func (s *slipService) maybeFinalizeRequest(ctx context.Context, requestID uuid.UUID, actorName string, actor lifecycle.Actor) error {
	pending, err := s.slips.CountPendingRequisitions(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to count pending requisition slips: %w", err)
	}
	if pending > 0 {
		return nil
	}

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("request not found: %w", err)
	}
	before := len(req.Approvals)
	if err := lifecycle.Transition(req, model.StageFinance, model.ApprovalActionApprove, actor, actorName, "all requisition slips cleared", time.Now()); err != nil {
		return err
	}
	if err := s.requests.AppendApproval(ctx, &req.Approvals[before]); err != nil {
		return fmt.Errorf("failed to append finance record: %w", err)
	}
	if err := s.requests.Update(ctx, req); err != nil {
		return fmt.Errorf("failed to finalize request: %w", err)
	}
	return nil
}

// --- Helpers ---

func (s *slipService) reload(ctx context.Context, id uuid.UUID) (SlipResponse, error) {
	slip, err := s.slips.FindByID(ctx, id)
	if err != nil {
		return SlipResponse{}, fmt.Errorf("failed to reload slip: %w", err)
	}
	return toSlipResponse(slip), nil
}

func (s *slipService) writeAudit(ctx context.Context, userID uuid.UUID, action string, slip *model.Slip, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := model.AuditLog{
		UserID:     &userID,
		Action:     action,
		EntityID:   slip.ID.String(),
		EntityName: slip.SlipNo,
		Details:    string(payload),
	}
	if err := s.audits.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *slipService) nextSlipNo(ctx context.Context, kind string) (string, error) {
	prefix := "RS"
	if kind == model.SlipKindPurchaseOrder {
		prefix = "PO"
	}
	count, err := s.slips.CountToday(ctx, kind)
	if err != nil {
		return "", fmt.Errorf("failed to generate slip number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, time.Now().Format("20060102"), count+1), nil
}

func toSlipResponse(slip *model.Slip) SlipResponse {
	resp := SlipResponse{
		ID:          slip.ID.String(),
		SlipNo:      slip.SlipNo,
		Kind:        slip.Kind,
		RequestID:   slip.RequestID.String(),
		Particulars: slip.Particulars,
		Supplier:    slip.Supplier,
		Amount:      slip.Amount.StringFixed(2),
		Approval:    slip.Approval,
		Remarks:     slip.Remarks,
		CreatedAt:   slip.CreatedAt.Format(time.RFC3339),
	}
	if slip.Request != nil {
		resp.RequestNo = slip.Request.RequestNo
	}
	if slip.PreparedBy != nil {
		resp.PreparedBy = slip.PreparedBy.FullName
	}
	if slip.Approver != nil {
		resp.ApproverName = slip.Approver.FullName
	}
	if slip.ActionDate != nil {
		d := slip.ActionDate.Format(time.RFC3339)
		resp.ActionDate = &d
	}
	return resp
}
