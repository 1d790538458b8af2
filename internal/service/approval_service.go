package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/currency"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type ApproverDTO struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
	Role string `json:"role"`
}

type SubmitApprovalDTO struct {
	FacilityID  string                 `json:"facility_id" binding:"required"`
	Module      string                 `json:"module" binding:"required"`
	RequestType string                 `json:"request_type" binding:"required"`
	Priority    string                 `json:"priority"`
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`

	// Optional monetary block. Decimal strings, following the store precision.
	// ExchangeRate comes from the caller's FX source; the engine never looks
	// rates up itself.
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExchangeRate string `json:"exchange_rate"`

	Deadline *time.Time   `json:"deadline"`
	Approver *ApproverDTO `json:"approver"`
}

// ApprovalFilter is the conjunctive filter set for list views. Every criterion
// is optional and independently applicable; range bounds are inclusive.
type ApprovalFilter struct {
	Module     string
	Status     string
	Priority   string
	SearchText string
	DateFrom   *time.Time
	DateTo     *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
}

type HistoryEntryResponse struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"created_at"`
}

type ApprovalResponse struct {
	ID          string                 `json:"id"`
	FacilityID  string                 `json:"facility_id"`
	Module      string                 `json:"module"`
	RequestType string                 `json:"request_type"`
	Priority    string                 `json:"priority"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`

	Amount       *string `json:"amount"`
	Currency     string  `json:"currency,omitempty"`
	ExchangeRate *string `json:"exchange_rate"`
	AmountBase   *string `json:"amount_base"`

	RequestedByID   string `json:"requested_by_id"`
	RequestedByName string `json:"requested_by_name"`

	ApproverID   *string `json:"approver_id"`
	ApproverName string  `json:"approver_name,omitempty"`
	ApproverRole string  `json:"approver_role,omitempty"`

	Status      string  `json:"status"`
	RequestedAt string  `json:"requested_at"`
	Deadline    *string `json:"deadline"`

	DecidedByID   *string `json:"decided_by_id"`
	DecidedByName string  `json:"decided_by_name,omitempty"`
	DecidedAt     *string `json:"decided_at"`

	History []HistoryEntryResponse `json:"history,omitempty"`
}

type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult partitions a bulk transition into per-item outcomes so the
// caller can report "N of M processed".
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// --- Interface ---

type ApprovalService interface {
	Submit(ctx context.Context, actor model.ActorRef, req SubmitApprovalDTO) (ApprovalResponse, error)
	Get(ctx context.Context, id string) (ApprovalResponse, error)
	List(ctx context.Context, facilityID string, filter ApprovalFilter, page, limit int) ([]ApprovalResponse, int64, error)
	Approve(ctx context.Context, id string, actor model.ActorRef, comment string) (ApprovalResponse, error)
	Reject(ctx context.Context, id string, actor model.ActorRef, comment string) (ApprovalResponse, error)
	Cancel(ctx context.Context, id string, actor model.ActorRef) (ApprovalResponse, error)
	Comment(ctx context.Context, id string, actor model.ActorRef, comment string) (ApprovalResponse, error)
	Reassign(ctx context.Context, id string, actor model.ActorRef, approver ApproverDTO) (ApprovalResponse, error)
	BulkApprove(ctx context.Context, ids []string, actor model.ActorRef, comment string) (BulkResult, error)
	BulkReject(ctx context.Context, ids []string, actor model.ActorRef, comment string) (BulkResult, error)
}

type approvalService struct {
	approvalRepo repository.ApprovalRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	baseCurrency string
}

func NewApprovalService(
	approvalRepo repository.ApprovalRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	baseCurrency string,
) ApprovalService {
	if baseCurrency == "" {
		baseCurrency = currency.DefaultBase
	}
	return &approvalService{
		approvalRepo: approvalRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		baseCurrency: baseCurrency,
	}
}

// --- Submit ---

func (s *approvalService) Submit(ctx context.Context, actor model.ActorRef, req SubmitApprovalDTO) (ApprovalResponse, error) {
	facilityID, err := uuid.Parse(req.FacilityID)
	if err != nil {
		return ApprovalResponse{}, apperr.Validationf("invalid facility_id: %v", err)
	}

	if !model.ValidModule(req.Module) {
		return ApprovalResponse{}, apperr.Validationf("unknown module %q", req.Module)
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !model.ValidPriority(priority) {
		return ApprovalResponse{}, apperr.Validationf("unknown priority %q", priority)
	}

	amount, rate, amountBase, err := s.normalizeMonetary(req)
	if err != nil {
		return ApprovalResponse{}, err
	}

	now := time.Now()
	approval := model.ApprovalRequest{
		FacilityID:      facilityID,
		Module:          req.Module,
		RequestType:     req.RequestType,
		Priority:        priority,
		Title:           req.Title,
		Description:     req.Description,
		Metadata:        req.Metadata,
		Amount:          amount,
		Currency:        req.Currency,
		ExchangeRate:    rate,
		AmountBase:      amountBase,
		RequestedByID:   actor.ID,
		RequestedByName: actor.Name,
		Status:          model.StatusPending,
		RequestedAt:     now,
		Deadline:        req.Deadline,
	}

	if req.Approver != nil {
		approverRef, refErr := parseApprover(*req.Approver)
		if refErr != nil {
			return ApprovalResponse{}, refErr
		}
		approval.CurrentApproverID = &approverRef.ID
		approval.CurrentApproverName = approverRef.Name
		approval.CurrentApproverRole = approverRef.Role
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.approvalRepo.Create(txCtx, &approval); createErr != nil {
			return createErr
		}

		// The trail always opens with one SUBMITTED entry stamped with the
		// request's own creation time.
		entry := model.ApprovalHistoryEntry{
			RequestID: approval.ID,
			Action:    model.ActionSubmitted,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			CreatedAt: approval.RequestedAt,
		}
		if histErr := s.approvalRepo.AppendHistory(txCtx, &entry); histErr != nil {
			return histErr
		}

		return s.writeAudit(txCtx, actor, model.ActionSubmitApproval, approval, map[string]interface{}{
			"module":       approval.Module,
			"request_type": approval.RequestType,
		})
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	return s.reload(ctx, approval.ID)
}

// normalizeMonetary validates the amount/currency pairing and derives the
// base-currency amount exactly once. A request without a monetary value
// returns all nils.
func (s *approvalService) normalizeMonetary(req SubmitApprovalDTO) (amount, rate, amountBase *decimal.Decimal, err error) {
	if req.Amount == "" && req.Currency == "" {
		return nil, nil, nil, nil
	}
	if req.Amount == "" || req.Currency == "" {
		return nil, nil, nil, apperr.Validationf("amount and currency must be supplied together")
	}

	parsedAmount, parseErr := decimal.NewFromString(req.Amount)
	if parseErr != nil {
		return nil, nil, nil, apperr.Validationf("invalid amount: %v", parseErr)
	}
	if parsedAmount.IsNegative() {
		return nil, nil, nil, apperr.Validationf("amount must not be negative")
	}

	parsedRate := decimal.NewFromInt(1)
	if req.Currency != s.baseCurrency {
		if req.ExchangeRate == "" {
			return nil, nil, nil, apperr.Validationf("exchange_rate is required for currency %s", req.Currency)
		}
		parsedRate, parseErr = decimal.NewFromString(req.ExchangeRate)
		if parseErr != nil {
			return nil, nil, nil, apperr.Validationf("invalid exchange_rate: %v", parseErr)
		}
	}

	base, convErr := currency.ToBase(parsedAmount, req.Currency, parsedRate, s.baseCurrency)
	if convErr != nil {
		return nil, nil, nil, convErr
	}

	return &parsedAmount, &parsedRate, &base, nil
}

// --- Single transitions ---

func (s *approvalService) Approve(ctx context.Context, id string, actor model.ActorRef, comment string) (ApprovalResponse, error) {
	return s.decide(ctx, id, actor, model.StatusApproved, model.ActionApproved, model.ActionApproveApproval, comment)
}

func (s *approvalService) Reject(ctx context.Context, id string, actor model.ActorRef, comment string) (ApprovalResponse, error) {
	if strings.TrimSpace(comment) == "" {
		return ApprovalResponse{}, apperr.Validationf("a rejection comment is required")
	}
	return s.decide(ctx, id, actor, model.StatusRejected, model.ActionRejected, model.ActionRejectApproval, comment)
}

// decide applies one terminal decision: a compare-and-swap on PENDING plus the
// matching history entry and audit row, committed atomically.
func (s *approvalService) decide(ctx context.Context, id string, actor model.ActorRef, toStatus, historyAction, auditAction, comment string) (ApprovalResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, apperr.Validationf("invalid approval request id: %v", err)
	}

	now := time.Now()
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		patch := repository.StatusPatch{
			Status:        toStatus,
			DecidedByID:   &actor.ID,
			DecidedByName: actor.Name,
			DecidedAt:     &now,
		}
		if txErr := s.approvalRepo.TransitionStatus(txCtx, requestID, model.StatusPending, patch); txErr != nil {
			return txErr
		}

		entry := model.ApprovalHistoryEntry{
			RequestID: requestID,
			Action:    historyAction,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Comment:   comment,
			CreatedAt: now,
		}
		if histErr := s.approvalRepo.AppendHistory(txCtx, &entry); histErr != nil {
			return histErr
		}

		details := map[string]interface{}{"status": toStatus}
		if comment != "" {
			details["comment"] = comment
		}
		return s.writeAuditByID(txCtx, actor, auditAction, requestID, details)
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	return s.reload(ctx, requestID)
}

// Cancel withdraws a pending request before any decision. It is a status-only
// change: no history action is recorded, only the audit row.
func (s *approvalService) Cancel(ctx context.Context, id string, actor model.ActorRef) (ApprovalResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, apperr.Validationf("invalid approval request id: %v", err)
	}

	now := time.Now()
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		patch := repository.StatusPatch{
			Status:        model.StatusCancelled,
			DecidedByID:   &actor.ID,
			DecidedByName: actor.Name,
			DecidedAt:     &now,
		}
		if txErr := s.approvalRepo.TransitionStatus(txCtx, requestID, model.StatusPending, patch); txErr != nil {
			return txErr
		}
		return s.writeAuditByID(txCtx, actor, model.ActionCancelApproval, requestID, nil)
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	return s.reload(ctx, requestID)
}

// Comment appends a COMMENTED history entry without changing status. Only
// pending requests accept further discussion.
func (s *approvalService) Comment(ctx context.Context, id string, actor model.ActorRef, comment string) (ApprovalResponse, error) {
	if strings.TrimSpace(comment) == "" {
		return ApprovalResponse{}, apperr.Validationf("comment must not be empty")
	}

	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, apperr.Validationf("invalid approval request id: %v", err)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if pendErr := s.requirePending(txCtx, requestID); pendErr != nil {
			return pendErr
		}

		entry := model.ApprovalHistoryEntry{
			RequestID: requestID,
			Action:    model.ActionCommented,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Comment:   comment,
			CreatedAt: time.Now(),
		}
		if histErr := s.approvalRepo.AppendHistory(txCtx, &entry); histErr != nil {
			return histErr
		}
		return s.writeAuditByID(txCtx, actor, model.ActionCommentApproval, requestID, map[string]interface{}{"comment": comment})
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	return s.reload(ctx, requestID)
}

// Reassign hands a pending request to a different approver.
func (s *approvalService) Reassign(ctx context.Context, id string, actor model.ActorRef, approver ApproverDTO) (ApprovalResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, apperr.Validationf("invalid approval request id: %v", err)
	}

	approverRef, err := parseApprover(approver)
	if err != nil {
		return ApprovalResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if pendErr := s.requirePending(txCtx, requestID); pendErr != nil {
			return pendErr
		}

		if updErr := s.approvalRepo.UpdateApprover(txCtx, requestID, approverRef); updErr != nil {
			return updErr
		}

		entry := model.ApprovalHistoryEntry{
			RequestID: requestID,
			Action:    model.ActionReassigned,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Comment:   "reassigned to " + approverRef.Name,
			CreatedAt: time.Now(),
		}
		if histErr := s.approvalRepo.AppendHistory(txCtx, &entry); histErr != nil {
			return histErr
		}
		return s.writeAuditByID(txCtx, actor, model.ActionReassignRequest, requestID, map[string]interface{}{
			"approver_id":   approverRef.ID.String(),
			"approver_name": approverRef.Name,
		})
	})
	if err != nil {
		return ApprovalResponse{}, err
	}

	return s.reload(ctx, requestID)
}

// requirePending locks the request's row for the rest of the transaction so
// no concurrent decision can slip in before the history append commits.
func (s *approvalService) requirePending(ctx context.Context, id uuid.UUID) error {
	_, err := s.approvalRepo.FindPendingForUpdate(ctx, id)
	return err
}

// --- Bulk transitions ---

// BulkApprove processes each id independently; one item's failure never
// blocks or rolls back the others.
func (s *approvalService) BulkApprove(ctx context.Context, ids []string, actor model.ActorRef, comment string) (BulkResult, error) {
	result := BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, id := range ids {
		if _, err := s.Approve(ctx, id, actor, comment); err != nil {
			result.Failed = append(result.Failed, BulkFailure{ID: id, Reason: apperr.Code(err)})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// BulkReject applies the one shared comment to every item. The comment is
// validated once up front so an empty comment fails the whole call rather
// than each item.
func (s *approvalService) BulkReject(ctx context.Context, ids []string, actor model.ActorRef, comment string) (BulkResult, error) {
	if strings.TrimSpace(comment) == "" {
		return BulkResult{}, apperr.Validationf("a rejection comment is required")
	}

	result := BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, id := range ids {
		if _, err := s.Reject(ctx, id, actor, comment); err != nil {
			result.Failed = append(result.Failed, BulkFailure{ID: id, Reason: apperr.Code(err)})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// --- Queries ---

func (s *approvalService) Get(ctx context.Context, id string) (ApprovalResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return ApprovalResponse{}, apperr.Validationf("invalid approval request id: %v", err)
	}
	return s.reload(ctx, requestID)
}

// List reads the facility's population and filters it in memory. All supplied
// criteria must match; range bounds are inclusive.
func (s *approvalService) List(ctx context.Context, facilityID string, filter ApprovalFilter, page, limit int) ([]ApprovalResponse, int64, error) {
	facility, err := uuid.Parse(facilityID)
	if err != nil {
		return nil, 0, apperr.Validationf("invalid facility_id: %v", err)
	}

	requests, err := s.approvalRepo.ListByFacility(ctx, facility)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]model.ApprovalRequest, 0, len(requests))
	for _, req := range requests {
		if filter.Matches(req) {
			matched = append(matched, req)
		}
	}
	total := int64(len(matched))

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	result := make([]ApprovalResponse, 0, end-start)
	for _, req := range matched[start:end] {
		result = append(result, toApprovalResponse(req))
	}
	return result, total, nil
}

// Matches reports whether req satisfies every supplied criterion.
func (f ApprovalFilter) Matches(req model.ApprovalRequest) bool {
	if f.Module != "" && req.Module != f.Module {
		return false
	}
	if f.Status != "" && req.Status != f.Status {
		return false
	}
	if f.Priority != "" && req.Priority != f.Priority {
		return false
	}
	if f.SearchText != "" {
		needle := strings.ToLower(f.SearchText)
		if !strings.Contains(strings.ToLower(req.Title), needle) &&
			!strings.Contains(strings.ToLower(req.Description), needle) &&
			!strings.Contains(strings.ToLower(req.RequestedByName), needle) {
			return false
		}
	}
	if f.DateFrom != nil && req.RequestedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && req.RequestedAt.After(*f.DateTo) {
		return false
	}
	if f.MinAmount != nil {
		if req.AmountBase == nil || req.AmountBase.LessThan(*f.MinAmount) {
			return false
		}
	}
	if f.MaxAmount != nil {
		if req.AmountBase == nil || req.AmountBase.GreaterThan(*f.MaxAmount) {
			return false
		}
	}
	return true
}

// --- Helpers ---

func parseApprover(dto ApproverDTO) (model.ActorRef, error) {
	id, err := uuid.Parse(dto.ID)
	if err != nil {
		return model.ActorRef{}, apperr.Validationf("invalid approver id: %v", err)
	}
	return model.ActorRef{ID: id, Name: dto.Name, Role: dto.Role}, nil
}

func (s *approvalService) reload(ctx context.Context, id uuid.UUID) (ApprovalResponse, error) {
	approval, err := s.approvalRepo.FindByID(ctx, id)
	if err != nil {
		return ApprovalResponse{}, err
	}
	return toApprovalResponse(*approval), nil
}

func (s *approvalService) writeAudit(ctx context.Context, actor model.ActorRef, action string, approval model.ApprovalRequest, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	actorID := actor.ID
	log := model.AuditLog{
		UserID:     &actorID,
		Action:     action,
		EntityID:   approval.ID.String(),
		EntityName: approval.Title,
		Details:    string(payload),
	}
	if err := s.auditRepo.Create(ctx, &log); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *approvalService) writeAuditByID(ctx context.Context, actor model.ActorRef, action string, requestID uuid.UUID, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	actorID := actor.ID
	log := model.AuditLog{
		UserID:   &actorID,
		Action:   action,
		EntityID: requestID.String(),
		Details:  string(payload),
	}
	if err := s.auditRepo.Create(ctx, &log); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toApprovalResponse(a model.ApprovalRequest) ApprovalResponse {
	resp := ApprovalResponse{
		ID:              a.ID.String(),
		FacilityID:      a.FacilityID.String(),
		Module:          a.Module,
		RequestType:     a.RequestType,
		Priority:        a.Priority,
		Title:           a.Title,
		Description:     a.Description,
		Metadata:        a.Metadata,
		Currency:        a.Currency,
		RequestedByID:   a.RequestedByID.String(),
		RequestedByName: a.RequestedByName,
		ApproverName:    a.CurrentApproverName,
		ApproverRole:    a.CurrentApproverRole,
		Status:          a.Status,
		RequestedAt:     a.RequestedAt.Format(time.RFC3339),
		DecidedByName:   a.DecidedByName,
	}

	if a.Amount != nil {
		s := a.Amount.StringFixed(4)
		resp.Amount = &s
	}
	if a.ExchangeRate != nil {
		s := a.ExchangeRate.String()
		resp.ExchangeRate = &s
	}
	if a.AmountBase != nil {
		s := a.AmountBase.StringFixed(4)
		resp.AmountBase = &s
	}
	if a.CurrentApproverID != nil {
		s := a.CurrentApproverID.String()
		resp.ApproverID = &s
	}
	if a.Deadline != nil {
		s := a.Deadline.Format(time.RFC3339)
		resp.Deadline = &s
	}
	if a.DecidedByID != nil {
		s := a.DecidedByID.String()
		resp.DecidedByID = &s
	}
	if a.DecidedAt != nil {
		s := a.DecidedAt.Format(time.RFC3339)
		resp.DecidedAt = &s
	}

	for _, h := range a.History {
		resp.History = append(resp.History, HistoryEntryResponse{
			ID:        h.ID.String(),
			Action:    h.Action,
			ActorID:   h.ActorID.String(),
			ActorName: h.ActorName,
			Comment:   h.Comment,
			CreatedAt: h.CreatedAt.Format(time.RFC3339),
		})
	}

	return resp
}
