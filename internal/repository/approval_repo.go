package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/model"
	"backoffice/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusPatch is the field set a status transition writes alongside the
// compare-and-swap on the current status.
type StatusPatch struct {
	Status        string
	DecidedByID   *uuid.UUID
	DecidedByName string
	DecidedAt     *time.Time
}

// ApprovalRepository is the durable record store for approval requests and
// their history. All failures of the underlying store surface as
// apperr.ErrStoreUnavailable; missing rows as apperr.ErrNotFound.
type ApprovalRepository interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	FindPendingForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]model.ApprovalRequest, error)
	PendingCreatedSince(ctx context.Context, facilityID uuid.UUID, since time.Time) ([]model.ApprovalRequest, error)
	CountByStatus(ctx context.Context, facilityID uuid.UUID) (model.ApprovalStats, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, expectedStatus string, patch StatusPatch) error
	AppendHistory(ctx context.Context, entry *model.ApprovalHistoryEntry) error
	UpdateApprover(ctx context.Context, id uuid.UUID, approver model.ActorRef) error
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
}

func (r *approvalRepository) Create(ctx context.Context, req *model.ApprovalRequest) error {
	if err := GetDB(ctx, r.db).Create(req).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, seq ASC")
		}).
		First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, storeErr(err)
	}
	return &req, nil
}

// FindPendingForUpdate loads the request with a row lock held for the rest of
// the surrounding transaction, so a concurrent decision cannot commit between
// this check and a subsequent history append. Returns ErrAlreadyProcessed once
// the request has left PENDING.
func (r *approvalRepository) FindPendingForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, storeErr(err)
	}
	if req.Status != model.StatusPending {
		return nil, apperr.ErrAlreadyProcessed
	}
	return &req, nil
}

func (r *approvalRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]model.ApprovalRequest, error) {
	var requests []model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Where("facility_id = ?", facilityID).
		Order("requested_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return requests, nil
}

func (r *approvalRepository) PendingCreatedSince(ctx context.Context, facilityID uuid.UUID, since time.Time) ([]model.ApprovalRequest, error) {
	var requests []model.ApprovalRequest
	err := GetDB(ctx, r.db).
		Where("facility_id = ? AND status = ? AND requested_at > ?", facilityID, model.StatusPending, since).
		Order("requested_at ASC").
		Find(&requests).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return requests, nil
}

// CountByStatus derives the whole-population stats in one query so the counts
// are never torn across separate reads.
func (r *approvalRepository) CountByStatus(ctx context.Context, facilityID uuid.UUID) (model.ApprovalStats, error) {
	var stats model.ApprovalStats
	err := GetDB(ctx, r.db).
		Model(&model.ApprovalRequest{}).
		Select(
			"COUNT(*) FILTER (WHERE status = 'PENDING') AS pending, "+
				"COUNT(*) FILTER (WHERE status = 'APPROVED') AS approved, "+
				"COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected, "+
				"COUNT(*) FILTER (WHERE status = 'PENDING' AND priority = 'URGENT') AS urgent").
		Where("facility_id = ?", facilityID).
		Scan(&stats).Error
	if err != nil {
		return model.ApprovalStats{}, storeErr(err)
	}
	return stats, nil
}

// TransitionStatus performs the optimistic-concurrency guard on a single
// request: the UPDATE only applies while the row still holds expectedStatus,
// so of two concurrent deciders exactly one wins and the other observes
// ErrAlreadyProcessed.
func (r *approvalRepository) TransitionStatus(ctx context.Context, id uuid.UUID, expectedStatus string, patch StatusPatch) error {
	db := GetDB(ctx, r.db)

	fields := map[string]interface{}{
		"status":          patch.Status,
		"decided_by_id":   patch.DecidedByID,
		"decided_by_name": patch.DecidedByName,
		"decided_at":      patch.DecidedAt,
	}

	res := db.Model(&model.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(fields)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&model.ApprovalRequest{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return storeErr(err)
		}
		if count == 0 {
			return apperr.ErrNotFound
		}
		return apperr.ErrAlreadyProcessed
	}
	return nil
}

func (r *approvalRepository) AppendHistory(ctx context.Context, entry *model.ApprovalHistoryEntry) error {
	if err := GetDB(ctx, r.db).Create(entry).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *approvalRepository) UpdateApprover(ctx context.Context, id uuid.UUID, approver model.ActorRef) error {
	res := GetDB(ctx, r.db).Model(&model.ApprovalRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_approver_id":   approver.ID,
			"current_approver_name": approver.Name,
			"current_approver_role": approver.Role,
		})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
