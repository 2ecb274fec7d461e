package admin

import (
	"errors"
	"strconv"

	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/repository"
	"github.com/orbisvoice-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListAffiliates 推广伙伴列表
func (h *Handler) ListAffiliates(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	affiliates, total, err := h.AffiliateService.ListAffiliates(repository.AffiliateListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   c.Query("status"),
		Keyword:  c.Query("search"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "fetch affiliates failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, affiliates, pagination)
}

// ApproveAffiliate 审核通过推广伙伴申请
func (h *Handler) ApproveAffiliate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	affiliate, err := h.AffiliateService.Approve(id)
	if err != nil {
		if errors.Is(err, service.ErrAffiliateNotFound) {
			respondError(c, response.CodeNotFound, "affiliate not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "approve failed", err)
		return
	}
	response.Success(c, affiliate)
}

// RejectAffiliate 驳回推广伙伴申请
func (h *Handler) RejectAffiliate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.AffiliateService.Reject(id); err != nil {
		if errors.Is(err, service.ErrAffiliateNotFound) {
			respondError(c, response.CodeNotFound, "affiliate not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "reject failed", err)
		return
	}
	response.Success(c, nil)
}

// DisableAffiliate 停用推广伙伴
func (h *Handler) DisableAffiliate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.AffiliateService.Disable(id); err != nil {
		if errors.Is(err, service.ErrAffiliateNotFound) {
			respondError(c, response.CodeNotFound, "affiliate not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "disable failed", err)
		return
	}
	response.Success(c, nil)
}

// MarkAffiliateTaxForm 标记税表已提交
func (h *Handler) MarkAffiliateTaxForm(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.AffiliateService.MarkTaxFormCompleted(id); err != nil {
		if errors.Is(err, service.ErrAffiliateNotFound) {
			respondError(c, response.CodeNotFound, "affiliate not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "save failed", err)
		return
	}
	response.Success(c, nil)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid id", nil)
		return 0, false
	}
	return uint(id), true
}
