package service

import (
	"context"

	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/pkg/apperr"

	"github.com/google/uuid"
)

type StatsService interface {
	ComputeStats(ctx context.Context, facilityID string) (model.ApprovalStats, error)
}

type statsService struct {
	approvalRepo repository.ApprovalRepository
}

func NewStatsService(approvalRepo repository.ApprovalRepository) StatsService {
	return &statsService{approvalRepo: approvalRepo}
}

// ComputeStats derives headline counts from the facility's full, unfiltered
// population in a single read, so counts shown next to a filtered list always
// summarize the whole population. No caching; callers re-derive after any
// mutation.
func (s *statsService) ComputeStats(ctx context.Context, facilityID string) (model.ApprovalStats, error) {
	facility, err := uuid.Parse(facilityID)
	if err != nil {
		return model.ApprovalStats{}, apperr.Validationf("invalid facility_id: %v", err)
	}
	return s.approvalRepo.CountByStatus(ctx, facility)
}
