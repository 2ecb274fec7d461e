package public

import (
	"errors"
	"strings"

	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/service"

	"github.com/gin-gonic/gin"
)

// AffiliateApplyRequest 推广伙伴申请请求
type AffiliateApplyRequest struct {
	Slug          string `json:"slug"`
	Website       string `json:"website"`
	PromotionPlan string `json:"promotion_plan"`
}

// ApplyAffiliate 申请成为推广伙伴
func (h *Handler) ApplyAffiliate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req AffiliateApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	affiliate, err := h.AffiliateService.Apply(service.AffiliateApplyInput{
		UserID:        uid,
		Slug:          req.Slug,
		Website:       req.Website,
		PromotionPlan: req.PromotionPlan,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAffiliateExists):
			respondError(c, response.CodeBadRequest, "affiliate profile already exists", nil)
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "user not found", nil)
		default:
			respondError(c, response.CodeInternal, "apply failed", err)
		}
		return
	}
	response.Success(c, affiliate)
}

// GetMyAffiliateStats 推广伙伴数据看板
func (h *Handler) GetMyAffiliateStats(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	stats, err := h.AffiliateService.GetStats(uid)
	if err != nil {
		if errors.Is(err, service.ErrAffiliateNotFound) {
			respondError(c, response.CodeNotFound, "affiliate profile not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "fetch affiliate stats failed", err)
		return
	}
	response.Success(c, stats)
}

// StartAffiliateOnboarding 发起 Stripe Connect 收款账户开通
func (h *Handler) StartAffiliateOnboarding(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	refreshURL := strings.TrimSpace(h.Config.Stripe.ConnectRefreshURL)
	returnURL := strings.TrimSpace(h.Config.Stripe.ConnectReturnURL)

	link, err := h.AffiliateService.StartOnboarding(c.Request.Context(), uid, refreshURL, returnURL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAffiliateNotFound):
			respondError(c, response.CodeNotFound, "affiliate profile not found", nil)
		case errors.Is(err, service.ErrAffiliateNotActive):
			respondError(c, response.CodeForbidden, "affiliate profile not active", nil)
		default:
			respondError(c, response.CodeInternal, "start onboarding failed", err)
		}
		return
	}
	response.Success(c, gin.H{"onboarding_url": link})
}

// RefreshAffiliateAccountStatus 主动同步 Connect 账户状态
func (h *Handler) RefreshAffiliateAccountStatus(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	affiliate, err := h.AffiliateService.RefreshAccountStatus(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, service.ErrAffiliateNotFound) {
			respondError(c, response.CodeNotFound, "affiliate profile not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "refresh account status failed", err)
		return
	}
	response.Success(c, affiliate)
}
