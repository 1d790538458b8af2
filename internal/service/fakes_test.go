package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/pkg/apperr"

	"github.com/google/uuid"
)

// fakeApprovalRepo is an in-memory ApprovalRepository with the same
// compare-and-swap semantics the Postgres implementation provides.
type fakeApprovalRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*model.ApprovalRequest
	history  map[uuid.UUID][]model.ApprovalHistoryEntry
	nextSeq  int64

	// recorded PendingCreatedSince cursors, for notifier tests
	sinceCalls []time.Time
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{
		requests: make(map[uuid.UUID]*model.ApprovalRequest),
		history:  make(map[uuid.UUID][]model.ApprovalHistoryEntry),
	}
}

func (f *fakeApprovalRepo) Create(_ context.Context, req *model.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	clone := *req
	f.requests[req.ID] = &clone
	return nil
}

func (f *fakeApprovalRepo) FindByID(_ context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	clone := *req
	entries := append([]model.ApprovalHistoryEntry(nil), f.history[id]...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	clone.History = entries
	return &clone, nil
}

// FindPendingForUpdate matches the row-lock guard: the status check and any
// writes that follow within the same fakeTxManager call are serialized by the
// repo mutex, so a decided request can never be read back as pending.
func (f *fakeApprovalRepo) FindPendingForUpdate(_ context.Context, id uuid.UUID) (*model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if req.Status != model.StatusPending {
		return nil, apperr.ErrAlreadyProcessed
	}
	clone := *req
	return &clone, nil
}

func (f *fakeApprovalRepo) ListByFacility(_ context.Context, facilityID uuid.UUID) ([]model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []model.ApprovalRequest
	for _, req := range f.requests {
		if req.FacilityID == facilityID {
			result = append(result, *req)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RequestedAt.After(result[j].RequestedAt)
	})
	return result, nil
}

func (f *fakeApprovalRepo) PendingCreatedSince(_ context.Context, facilityID uuid.UUID, since time.Time) ([]model.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceCalls = append(f.sinceCalls, since)
	var result []model.ApprovalRequest
	for _, req := range f.requests {
		if req.FacilityID == facilityID && req.Status == model.StatusPending && req.RequestedAt.After(since) {
			result = append(result, *req)
		}
	}
	return result, nil
}

func (f *fakeApprovalRepo) CountByStatus(_ context.Context, facilityID uuid.UUID) (model.ApprovalStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats model.ApprovalStats
	for _, req := range f.requests {
		if req.FacilityID != facilityID {
			continue
		}
		switch req.Status {
		case model.StatusPending:
			stats.Pending++
			if req.Priority == model.PriorityUrgent {
				stats.Urgent++
			}
		case model.StatusApproved:
			stats.Approved++
		case model.StatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

func (f *fakeApprovalRepo) TransitionStatus(_ context.Context, id uuid.UUID, expectedStatus string, patch repository.StatusPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if req.Status != expectedStatus {
		return apperr.ErrAlreadyProcessed
	}
	req.Status = patch.Status
	req.DecidedByID = patch.DecidedByID
	req.DecidedByName = patch.DecidedByName
	req.DecidedAt = patch.DecidedAt
	return nil
}

func (f *fakeApprovalRepo) AppendHistory(_ context.Context, entry *model.ApprovalHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	f.nextSeq++
	entry.Seq = f.nextSeq
	f.history[entry.RequestID] = append(f.history[entry.RequestID], *entry)
	return nil
}

func (f *fakeApprovalRepo) UpdateApprover(_ context.Context, id uuid.UUID, approver model.ActorRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return apperr.ErrNotFound
	}
	approverID := approver.ID
	req.CurrentApproverID = &approverID
	req.CurrentApproverName = approver.Name
	req.CurrentApproverRole = approver.Role
	return nil
}

func (f *fakeApprovalRepo) historyLen(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history[id])
}

type fakeAuditRepo struct {
	mu   sync.Mutex
	logs []model.AuditLog
}

func (f *fakeAuditRepo) Create(_ context.Context, log *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, _, _ int) ([]model.AuditLog, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AuditLog(nil), f.logs...), int64(len(f.logs)), nil
}

// fakeTxManager runs the function directly; the fakes mutate in place, so
// per-statement semantics match what the CAS guard needs.
type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}
