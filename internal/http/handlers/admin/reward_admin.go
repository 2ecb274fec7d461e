package admin

import (
	"strconv"

	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListRewardTransactions 奖励流水列表
func (h *Handler) ListRewardTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	referrerID, _ := strconv.ParseUint(c.Query("referrer_id"), 10, 64)
	affiliateID, _ := strconv.ParseUint(c.Query("affiliate_id"), 10, 64)

	txns, total, err := h.RewardRepo.List(repository.RewardTransactionListFilter{
		Page:        page,
		PageSize:    pageSize,
		ReferrerID:  uint(referrerID),
		AffiliateID: uint(affiliateID),
		Type:        c.Query("type"),
		Status:      c.Query("status"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "fetch reward transactions failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, txns, pagination)
}

// ReleaseDueHolds 手动触发冻结期释放扫描
func (h *Handler) ReleaseDueHolds(c *gin.Context) {
	released, err := h.CommissionService.ClearPendingHolds()
	if err != nil {
		respondError(c, response.CodeInternal, "release holds failed", err)
		return
	}
	response.Success(c, gin.H{"released": released})
}

// ListWebhookEvents Webhook 事件审计列表
func (h *Handler) ListWebhookEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	events, total, err := h.WebhookEventRepo.List(repository.WebhookEventListFilter{
		Page:      page,
		PageSize:  pageSize,
		EventType: c.Query("event_type"),
		Status:    c.Query("status"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "fetch webhook events failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, events, pagination)
}

// ReplayWebhookEvent 手动重放一条事件
func (h *Handler) ReplayWebhookEvent(c *gin.Context) {
	eventID := c.Param("event_id")
	if eventID == "" {
		respondError(c, response.CodeBadRequest, "invalid event id", nil)
		return
	}
	if err := h.WebhookService.ReplayEvent(c.Request.Context(), eventID); err != nil {
		respondError(c, response.CodeInternal, "replay failed", err)
		return
	}
	response.Success(c, nil)
}
