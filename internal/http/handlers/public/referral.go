package public

import (
	"errors"

	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetMyReferralCode 获取（或生成）我的邀请码
func (h *Handler) GetMyReferralCode(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	referral, err := h.ReferralService.GetOrCreateCode(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch referral code failed", err)
		return
	}
	response.Success(c, referral)
}

// GetMyReferralStats 我的邀请数据看板
func (h *Handler) GetMyReferralStats(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	stats, err := h.ReferralService.GetStats(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch referral stats failed", err)
		return
	}
	response.Success(c, stats)
}

// RedeemReferralRequest 邀请码兑换请求
type RedeemReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// RedeemReferral 兑换邀请码（注册后补填场景）
func (h *Handler) RedeemReferral(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req RedeemReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	referral, err := h.ReferralService.Redeem(req.Code, uid)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReferralCodeInvalid):
			respondError(c, response.CodeBadRequest, "referral code invalid", nil)
		case errors.Is(err, service.ErrSelfReferral):
			respondError(c, response.CodeBadRequest, "cannot redeem your own code", nil)
		case errors.Is(err, service.ErrReferralAlreadyRedeemed):
			respondError(c, response.CodeBadRequest, "referral already redeemed", nil)
		default:
			respondError(c, response.CodeInternal, "redeem failed", err)
		}
		return
	}
	response.Success(c, referral)
}
