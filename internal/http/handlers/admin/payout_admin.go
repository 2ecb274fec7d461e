package admin

import (
	"errors"
	"strconv"

	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/repository"
	"github.com/orbisvoice-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetPayoutQueue 结算队列预览（可结金额、费率、合规状态）
func (h *Handler) GetPayoutQueue(c *gin.Context) {
	items, err := h.PayoutService.PayoutQueue()
	if err != nil {
		respondError(c, response.CodeInternal, "fetch payout queue failed", err)
		return
	}
	response.Success(c, items)
}

// ProcessPayout 对单个推广伙伴发起结算
func (h *Handler) ProcessPayout(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	payout, err := h.PayoutService.ProcessPayout(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAffiliateNotFound):
			respondError(c, response.CodeNotFound, "affiliate not found", nil)
		case errors.Is(err, service.ErrAffiliateNotActive):
			respondError(c, response.CodeBadRequest, "affiliate not active", nil)
		case errors.Is(err, service.ErrPayoutAccountNotReady):
			respondError(c, response.CodeBadRequest, "payout account not ready", nil)
		case errors.Is(err, service.ErrNoAvailableFunds):
			respondError(c, response.CodeBadRequest, "no available funds to pay out", nil)
		case errors.Is(err, service.ErrPayoutBelowMinimum):
			respondError(c, response.CodeBadRequest, "balance below payout minimum", nil)
		case errors.Is(err, service.ErrPayoutTaxFormRequired):
			respondError(c, response.CodeBadRequest, "tax form required before payout", nil)
		case errors.Is(err, service.ErrPayoutInProgress):
			respondError(c, response.CodeBadRequest, "payout already in progress", nil)
		default:
			respondError(c, response.CodeInternal, "payout failed", err)
		}
		return
	}
	response.Success(c, payout)
}

// BulkPayoutRequest 批量结算请求
type BulkPayoutRequest struct {
	AffiliateIDs []uint `json:"affiliate_ids" binding:"required"`
}

// ProcessBulkPayouts 批量结算，逐个隔离失败
func (h *Handler) ProcessBulkPayouts(c *gin.Context) {
	var req BulkPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	if len(req.AffiliateIDs) == 0 {
		respondError(c, response.CodeBadRequest, "affiliate_ids is empty", nil)
		return
	}
	result := h.PayoutService.ProcessBulkPayouts(c.Request.Context(), req.AffiliateIDs)
	response.Success(c, result)
}

// ListPayouts 打款单历史
func (h *Handler) ListPayouts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	affiliateID, _ := strconv.ParseUint(c.Query("affiliate_id"), 10, 64)

	payouts, total, err := h.PayoutRepo.List(repository.PayoutListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: uint(affiliateID),
		Status:      c.Query("status"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "fetch payouts failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, payouts, pagination)
}
