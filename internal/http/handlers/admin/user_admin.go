package admin

import (
	"strconv"
	"strings"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAdminUsers 用户列表
func (h *Handler) GetAdminUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	tenantID, _ := strconv.ParseUint(c.Query("tenant_id"), 10, 64)

	users, total, err := h.UserRepo.List(repository.UserListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  c.Query("search"),
		Status:   c.Query("status"),
		TenantID: uint(tenantID),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "fetch users failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, users, pagination)
}

// UpdateUserCommissionLevelRequest 调整用户佣金档位请求
type UpdateUserCommissionLevelRequest struct {
	CommissionLevel string `json:"commission_level" binding:"required"`
}

// UpdateUserCommissionLevel 调整用户佣金档位
func (h *Handler) UpdateUserCommissionLevel(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateUserCommissionLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	level := strings.ToUpper(strings.TrimSpace(req.CommissionLevel))
	switch level {
	case constants.CommissionLevelLow, constants.CommissionLevelMed, constants.CommissionLevelHigh, "":
	default:
		respondError(c, response.CodeBadRequest, "invalid commission level", nil)
		return
	}

	user, err := h.UserRepo.GetByID(id)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch user failed", err)
		return
	}
	if user == nil {
		respondError(c, response.CodeNotFound, "user not found", nil)
		return
	}

	user.CommissionLevel = level
	if err := h.UserRepo.Update(user); err != nil {
		respondError(c, response.CodeInternal, "save failed", err)
		return
	}
	response.Success(c, user)
}

// ListReferrals 邀请记录列表
func (h *Handler) ListReferrals(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)
	referrerID, _ := strconv.ParseUint(c.Query("referrer_id"), 10, 64)

	referrals, total, err := h.ReferralRepo.List(repository.ReferralListFilter{
		Page:       page,
		PageSize:   pageSize,
		ReferrerID: uint(referrerID),
		Status:     c.Query("status"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "fetch referrals failed", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, referrals, pagination)
}
