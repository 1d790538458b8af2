package service

import (
	"context"
	"testing"
	"time"

	"backoffice/internal/model"
	"backoffice/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testFacility = uuid.New()
	requester    = model.ActorRef{ID: uuid.New(), Name: "Ayşe Demir", Role: model.RoleStaff}
	adminA       = model.ActorRef{ID: uuid.New(), Name: "Admin A", Role: model.RoleAdmin}
	adminB       = model.ActorRef{ID: uuid.New(), Name: "Admin B", Role: model.RoleAdmin}
)

func newTestService() (ApprovalService, *fakeApprovalRepo, *fakeAuditRepo) {
	repo := newFakeApprovalRepo()
	audit := &fakeAuditRepo{}
	svc := NewApprovalService(repo, audit, fakeTxManager{}, "TRY")
	return svc, repo, audit
}

func submitDTO() SubmitApprovalDTO {
	return SubmitApprovalDTO{
		FacilityID:  testFacility.String(),
		Module:      model.ModuleFinance,
		RequestType: "budget_transfer",
		Priority:    model.PriorityHigh,
		Title:       "Q3 budget transfer",
		Description: "Transfer between cost centers",
		Metadata:    map[string]interface{}{"cost_center": "CC-42"},
	}
}

func mustSubmit(t *testing.T, svc ApprovalService, dto SubmitApprovalDTO) ApprovalResponse {
	t.Helper()
	resp, err := svc.Submit(context.Background(), requester, dto)
	require.NoError(t, err)
	return resp
}

func TestSubmitCreatesPendingWithSubmittedHistory(t *testing.T) {
	svc, _, audit := newTestService()

	resp := mustSubmit(t, svc, submitDTO())

	assert.Equal(t, model.StatusPending, resp.Status)
	assert.Equal(t, requester.Name, resp.RequestedByName)
	require.Len(t, resp.History, 1)
	assert.Equal(t, model.ActionSubmitted, resp.History[0].Action)
	// The opening history entry carries the request's own creation time.
	assert.Equal(t, resp.RequestedAt, resp.History[0].CreatedAt)
	assert.Len(t, audit.logs, 1)
}

func TestSubmitNormalizesAmountOnce(t *testing.T) {
	svc, _, _ := newTestService()

	dto := submitDTO()
	dto.Amount = "500"
	dto.Currency = "USD"
	dto.ExchangeRate = "32"

	resp := mustSubmit(t, svc, dto)
	require.NotNil(t, resp.AmountBase)
	assert.Equal(t, "16000.0000", *resp.AmountBase)
	require.NotNil(t, resp.ExchangeRate)
	assert.Equal(t, "32", *resp.ExchangeRate)

	// The stored base amount is evidentiary: a later decision must not change it.
	approved, err := svc.Approve(context.Background(), resp.ID, adminA, "")
	require.NoError(t, err)
	require.NotNil(t, approved.AmountBase)
	assert.Equal(t, "16000.0000", *approved.AmountBase)
}

func TestSubmitBaseCurrencyKeepsAmount(t *testing.T) {
	svc, _, _ := newTestService()

	dto := submitDTO()
	dto.Amount = "100"
	dto.Currency = "TRY"

	resp := mustSubmit(t, svc, dto)
	require.NotNil(t, resp.AmountBase)
	assert.Equal(t, "100.0000", *resp.AmountBase)
	require.NotNil(t, resp.ExchangeRate)
	assert.Equal(t, "1", *resp.ExchangeRate)
}

func TestSubmitMonetaryValidation(t *testing.T) {
	svc, _, _ := newTestService()

	tests := []struct {
		name     string
		amount   string
		currency string
		rate     string
	}{
		{"amount without currency", "100", "", ""},
		{"currency without amount", "", "USD", "32"},
		{"missing rate for foreign currency", "100", "USD", ""},
		{"zero rate", "100", "USD", "0"},
		{"negative rate", "100", "USD", "-2"},
		{"negative amount", "-5", "TRY", ""},
		{"malformed amount", "abc", "USD", "32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dto := submitDTO()
			dto.Amount = tt.amount
			dto.Currency = tt.currency
			dto.ExchangeRate = tt.rate

			_, err := svc.Submit(context.Background(), requester, dto)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestSubmitRejectsUnknownEnums(t *testing.T) {
	svc, _, _ := newTestService()

	dto := submitDTO()
	dto.Module = "LOGISTICS"
	_, err := svc.Submit(context.Background(), requester, dto)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	dto = submitDTO()
	dto.Priority = "WHENEVER"
	_, err = svc.Submit(context.Background(), requester, dto)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestApproveWinsOnceOnly(t *testing.T) {
	svc, repo, _ := newTestService()

	resp := mustSubmit(t, svc, submitDTO())
	requestID := uuid.MustParse(resp.ID)

	approved, err := svc.Approve(context.Background(), resp.ID, adminA, "looks good")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	require.Len(t, approved.History, 2)
	assert.Equal(t, model.ActionApproved, approved.History[1].Action)
	assert.Equal(t, adminA.Name, approved.History[1].ActorName)

	// The second decider loses the race and nothing changes.
	before := repo.historyLen(requestID)
	_, err = svc.Approve(context.Background(), resp.ID, adminB, "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	assert.Equal(t, before, repo.historyLen(requestID))

	current, err := svc.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, current.Status)
	assert.Equal(t, adminA.Name, current.DecidedByName)
}

func TestTerminalStatusBlocksEveryTransition(t *testing.T) {
	svc, _, _ := newTestService()

	resp := mustSubmit(t, svc, submitDTO())
	_, err := svc.Reject(context.Background(), resp.ID, adminA, "insufficient documentation")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), resp.ID, adminB, "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	_, err = svc.Reject(context.Background(), resp.ID, adminB, "still no")
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	_, err = svc.Cancel(context.Background(), resp.ID, requester)
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
}

func TestRejectRequiresComment(t *testing.T) {
	svc, _, _ := newTestService()
	resp := mustSubmit(t, svc, submitDTO())

	_, err := svc.Reject(context.Background(), resp.ID, adminA, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Reject(context.Background(), resp.ID, adminA, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	rejected, err := svc.Reject(context.Background(), resp.ID, adminA, "insufficient documentation")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	require.Len(t, rejected.History, 2)
	assert.Equal(t, "insufficient documentation", rejected.History[1].Comment)
}

func TestCancelIsStatusOnly(t *testing.T) {
	svc, _, _ := newTestService()
	resp := mustSubmit(t, svc, submitDTO())

	cancelled, err := svc.Cancel(context.Background(), resp.ID, requester)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	// Cancellation does not add a history action.
	require.Len(t, cancelled.History, 1)
	assert.Equal(t, model.ActionSubmitted, cancelled.History[0].Action)
}

func TestTransitionsOnMissingRequest(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Approve(context.Background(), uuid.New().String(), adminA, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Approve(context.Background(), "not-a-uuid", adminA, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCommentRequiresPending(t *testing.T) {
	svc, _, _ := newTestService()
	resp := mustSubmit(t, svc, submitDTO())

	commented, err := svc.Comment(context.Background(), resp.ID, adminA, "needs a second look")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, commented.Status)
	require.Len(t, commented.History, 2)
	assert.Equal(t, model.ActionCommented, commented.History[1].Action)

	_, err = svc.Approve(context.Background(), resp.ID, adminA, "")
	require.NoError(t, err)

	_, err = svc.Comment(context.Background(), resp.ID, adminB, "too late")
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
}

func TestNoHistoryEntryLandsAfterTerminal(t *testing.T) {
	svc, repo, _ := newTestService()
	resp := mustSubmit(t, svc, submitDTO())
	requestID := uuid.MustParse(resp.ID)

	_, err := svc.Approve(context.Background(), resp.ID, adminA, "")
	require.NoError(t, err)

	// A decision that lands first must lock out late discussion and
	// reassignment entirely; the terminal entry stays the most recent one.
	_, err = svc.Comment(context.Background(), resp.ID, adminB, "one more thing")
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	_, err = svc.Reassign(context.Background(), resp.ID, adminB, ApproverDTO{ID: adminB.ID.String(), Name: adminB.Name})
	assert.ErrorIs(t, err, apperr.ErrAlreadyProcessed)

	assert.Equal(t, 2, repo.historyLen(requestID))
	current, err := svc.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, current.History, 2)
	assert.Equal(t, model.ActionApproved, current.History[len(current.History)-1].Action)
	// the failed reassign left the approver untouched
	assert.Nil(t, current.ApproverID)
}

func TestHistoryOrderStableWithinSameInstant(t *testing.T) {
	svc, repo, _ := newTestService()
	resp := mustSubmit(t, svc, submitDTO())
	requestID := uuid.MustParse(resp.ID)

	// Two appends sharing one timestamp must still read back in append order.
	at := time.Now().Add(time.Second)
	for _, comment := range []string{"first", "second", "third"} {
		entry := model.ApprovalHistoryEntry{
			RequestID: requestID,
			Action:    model.ActionCommented,
			ActorID:   adminA.ID,
			ActorName: adminA.Name,
			Comment:   comment,
			CreatedAt: at,
		}
		require.NoError(t, repo.AppendHistory(context.Background(), &entry))
	}

	current, err := svc.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, current.History, 4)
	assert.Equal(t, "first", current.History[1].Comment)
	assert.Equal(t, "second", current.History[2].Comment)
	assert.Equal(t, "third", current.History[3].Comment)
}

func TestReassignUpdatesApprover(t *testing.T) {
	svc, _, _ := newTestService()
	resp := mustSubmit(t, svc, submitDTO())

	next := ApproverDTO{ID: adminB.ID.String(), Name: adminB.Name, Role: model.RoleAdmin}
	reassigned, err := svc.Reassign(context.Background(), resp.ID, adminA, next)
	require.NoError(t, err)
	require.NotNil(t, reassigned.ApproverID)
	assert.Equal(t, adminB.ID.String(), *reassigned.ApproverID)
	require.Len(t, reassigned.History, 2)
	assert.Equal(t, model.ActionReassigned, reassigned.History[1].Action)
}

func TestBulkApprovePartialFailure(t *testing.T) {
	svc, _, _ := newTestService()

	a := mustSubmit(t, svc, submitDTO())
	b := mustSubmit(t, svc, submitDTO())
	c := mustSubmit(t, svc, submitDTO())

	// b already decided between list load and bulk submit
	_, err := svc.Approve(context.Background(), b.ID, adminB, "")
	require.NoError(t, err)

	result, err := svc.BulkApprove(context.Background(), []string{a.ID, b.ID, c.ID}, adminA, "")
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, c.ID}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, b.ID, result.Failed[0].ID)
	assert.Equal(t, apperr.CodeAlreadyProcessed, result.Failed[0].Reason)

	for _, id := range []string{a.ID, c.ID} {
		current, getErr := svc.Get(context.Background(), id)
		require.NoError(t, getErr)
		assert.Equal(t, model.StatusApproved, current.Status)
	}
}

func TestBulkApproveReportsMissingIDs(t *testing.T) {
	svc, _, _ := newTestService()
	a := mustSubmit(t, svc, submitDTO())

	missing := uuid.New().String()
	result, err := svc.BulkApprove(context.Background(), []string{missing, a.ID}, adminA, "")
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, apperr.CodeNotFound, result.Failed[0].Reason)
}

func TestBulkRejectValidatesSharedCommentOnce(t *testing.T) {
	svc, _, _ := newTestService()
	a := mustSubmit(t, svc, submitDTO())
	b := mustSubmit(t, svc, submitDTO())

	_, err := svc.BulkReject(context.Background(), []string{a.ID, b.ID}, adminA, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// Nothing was touched by the failed call.
	current, err := svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, current.Status)

	result, err := svc.BulkReject(context.Background(), []string{a.ID, b.ID}, adminA, "missing receipts")
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)

	rejected, err := svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "missing receipts", rejected.History[1].Comment)
}

func TestListConjunctiveFilters(t *testing.T) {
	svc, _, _ := newTestService()

	finance := submitDTO()
	finance.Title = "Vehicle purchase"
	finance.Amount = "1000"
	finance.Currency = "TRY"
	financeResp := mustSubmit(t, svc, finance)

	hr := submitDTO()
	hr.Module = model.ModuleHR
	hr.Priority = model.PriorityUrgent
	hr.Title = "New hire onboarding"
	mustSubmit(t, svc, hr)

	ctx := context.Background()

	byModule, total, err := svc.List(ctx, testFacility.String(), ApprovalFilter{Module: model.ModuleFinance}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, byModule, 1)
	assert.Equal(t, financeResp.ID, byModule[0].ID)

	// search is a case-insensitive substring over title, description, requester name
	bySearch, _, err := svc.List(ctx, testFacility.String(), ApprovalFilter{SearchText: "vEhIcLe"}, 1, 20)
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, financeResp.ID, bySearch[0].ID)

	byRequester, _, err := svc.List(ctx, testFacility.String(), ApprovalFilter{SearchText: "ayşe"}, 1, 20)
	require.NoError(t, err)
	assert.Len(t, byRequester, 2)

	// conjunction: both criteria must hold
	none, _, err := svc.List(ctx, testFacility.String(), ApprovalFilter{Module: model.ModuleHR, SearchText: "vehicle"}, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, none)

	minAmount := decimal.NewFromInt(1000)
	byAmount, _, err := svc.List(ctx, testFacility.String(), ApprovalFilter{MinAmount: &minAmount}, 1, 20)
	require.NoError(t, err)
	// inclusive lower bound; the HR request has no amount and never matches
	require.Len(t, byAmount, 1)
	assert.Equal(t, financeResp.ID, byAmount[0].ID)

	maxAmount := decimal.NewFromInt(999)
	byAmount, _, err = svc.List(ctx, testFacility.String(), ApprovalFilter{MaxAmount: &maxAmount}, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, byAmount)
}

func TestListDateBoundsInclusive(t *testing.T) {
	svc, repo, _ := newTestService()
	resp := mustSubmit(t, svc, submitDTO())

	stored, err := repo.FindByID(context.Background(), uuid.MustParse(resp.ID))
	require.NoError(t, err)
	at := stored.RequestedAt

	from, to := at, at
	matched, _, err := svc.List(context.Background(), testFacility.String(), ApprovalFilter{DateFrom: &from, DateTo: &to}, 1, 20)
	require.NoError(t, err)
	assert.Len(t, matched, 1)

	after := at.Add(time.Second)
	matched, _, err = svc.List(context.Background(), testFacility.String(), ApprovalFilter{DateFrom: &after}, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestListPaginatesFilteredSet(t *testing.T) {
	svc, _, _ := newTestService()
	for i := 0; i < 5; i++ {
		mustSubmit(t, svc, submitDTO())
	}

	page1, total, err := svc.List(context.Background(), testFacility.String(), ApprovalFilter{}, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, page1, 2)

	page3, total, err := svc.List(context.Background(), testFacility.String(), ApprovalFilter{}, 3, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, page3, 1)
}
