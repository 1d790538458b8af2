package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/apperr"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	statsService    service.StatsService
}

func NewApprovalHandler(approvalService service.ApprovalService, statsService service.StatsService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, statsService: statsService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/api/approvals")
	approvals.Use(middleware.RequireActor())
	{
		approvals.POST("", h.Submit)
		approvals.GET("", h.List)
		approvals.GET("/stats", h.Stats)
		approvals.GET("/:id", h.Get)
		approvals.POST("/:id/comments", h.Comment)
	}

	deciders := router.Group("/api/approvals")
	deciders.Use(middleware.RequireActor(model.RoleAdmin, model.RoleManager))
	{
		deciders.PUT("/:id/approve", h.Approve)
		deciders.PUT("/:id/reject", h.Reject)
		deciders.PUT("/:id/cancel", h.Cancel)
		deciders.PUT("/:id/reassign", h.Reassign)
		deciders.POST("/bulk-approve", h.BulkApprove)
		deciders.POST("/bulk-reject", h.BulkReject)
	}
}

type commentDTO struct {
	Comment string `json:"comment"`
}

type bulkDTO struct {
	IDs     []string `json:"ids" binding:"required,min=1"`
	Comment string   `json:"comment"`
}

// Submit creates a new approval request in PENDING status
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req service.SubmitApprovalDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.Submit(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// List returns the facility's approval requests matching the supplied filters
func (h *ApprovalHandler) List(c *gin.Context) {
	facilityID := c.Query("facility_id")
	if facilityID == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "facility_id is required"))
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	page := pagination.Parse(c)
	approvals, total, err := h.approvalService.List(c.Request.Context(), facilityID, filter, page.Page, page.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Page(approvals, total, page.Page, page.Limit))
}

// Stats returns whole-population counts for a facility, independent of any
// list filter
func (h *ApprovalHandler) Stats(c *gin.Context) {
	facilityID := c.Query("facility_id")
	if facilityID == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "facility_id is required"))
		return
	}

	stats, err := h.statsService.ComputeStats(c.Request.Context(), facilityID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// Get returns one approval request with its full history
func (h *ApprovalHandler) Get(c *gin.Context) {
	result, err := h.approvalService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// bindOptionalComment accepts an absent body (the comment is optional) but
// still rejects a malformed one.
func bindOptionalComment(c *gin.Context, req *commentDTO) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return false
	}
	return true
}

// Approve transitions a pending request to APPROVED
func (h *ApprovalHandler) Approve(c *gin.Context) {
	var req commentDTO
	if !bindOptionalComment(c, &req) {
		return
	}

	result, err := h.approvalService.Approve(c.Request.Context(), c.Param("id"), middleware.CurrentActor(c), req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Reject transitions a pending request to REJECTED; a comment is mandatory
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req commentDTO
	if !bindOptionalComment(c, &req) {
		return
	}

	result, err := h.approvalService.Reject(c.Request.Context(), c.Param("id"), middleware.CurrentActor(c), req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Cancel withdraws a pending request before any decision
func (h *ApprovalHandler) Cancel(c *gin.Context) {
	result, err := h.approvalService.Cancel(c.Request.Context(), c.Param("id"), middleware.CurrentActor(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Comment appends a discussion entry to a pending request's history
func (h *ApprovalHandler) Comment(c *gin.Context) {
	var req commentDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.Comment(c.Request.Context(), c.Param("id"), middleware.CurrentActor(c), req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Reassign hands a pending request to a different approver
func (h *ApprovalHandler) Reassign(c *gin.Context) {
	var req service.ApproverDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.Reassign(c.Request.Context(), c.Param("id"), middleware.CurrentActor(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// BulkApprove approves each id independently and reports the partition of
// successes and failures
func (h *ApprovalHandler) BulkApprove(c *gin.Context) {
	var req bulkDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.BulkApprove(c.Request.Context(), req.IDs, middleware.CurrentActor(c), req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// BulkReject rejects each id independently with the one shared comment
func (h *ApprovalHandler) BulkReject(c *gin.Context) {
	var req bulkDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.BulkReject(c.Request.Context(), req.IDs, middleware.CurrentActor(c), req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

func parseFilter(c *gin.Context) (service.ApprovalFilter, error) {
	filter := service.ApprovalFilter{
		Module:     c.Query("module"),
		Status:     c.Query("status"),
		Priority:   c.Query("priority"),
		SearchText: c.Query("search"),
	}

	if raw := c.Query("date_from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.DateFrom = &t
	}
	if raw := c.Query("date_to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.DateTo = &t
	}
	if raw := c.Query("min_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, err
		}
		filter.MinAmount = &d
	}
	if raw := c.Query("max_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, err
		}
		filter.MaxAmount = &d
	}

	return filter, nil
}

// writeError maps engine errors to HTTP statuses
func writeError(c *gin.Context, err error) {
	code := apperr.Code(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyProcessed):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response.ErrorWithCode(status, code, err.Error()))
}
