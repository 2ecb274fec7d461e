package public

import (
	"time"

	"github.com/orbisvoice-next/internal/cache"
	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

const (
	publicConfigCacheKey = "public:config"
	publicConfigCacheTTL = 5 * time.Minute
)

// GetConfig 获取公开站点配置（含推广计划条款）
func (h *Handler) GetConfig(c *gin.Context) {
	defaults := map[string]interface{}{
		constants.SettingFieldSiteCurrency: constants.SiteCurrencyDefault,
	}

	var cached map[string]interface{}
	if hit, err := cache.GetJSON(c.Request.Context(), publicConfigCacheKey, &cached); err == nil && hit {
		response.Success(c, cached)
		return
	}

	data, err := h.SettingService.GetConfig(defaults)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch config failed", err)
		return
	}

	reward, err := h.SettingService.GetRewardSetting()
	if err != nil {
		respondError(c, response.CodeInternal, "fetch config failed", err)
		return
	}
	data["referral_program"] = map[string]interface{}{
		"commission_rate_low":        reward.CommissionRateLow,
		"commission_rate_med":        reward.CommissionRateMed,
		"commission_rate_high":       reward.CommissionRateHigh,
		"commission_duration_months": reward.CommissionDurationMonths,
		"refund_hold_days":           reward.RefundHoldDays,
		"payout_minimum":             reward.PayoutMinimum,
	}

	_ = cache.SetJSON(c.Request.Context(), publicConfigCacheKey, data, publicConfigCacheTTL)
	response.Success(c, data)
}
