package admin

import (
	"errors"

	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetRewardSettings 获取奖励配置
func (h *Handler) GetRewardSettings(c *gin.Context) {
	setting, err := h.SettingService.GetRewardSetting()
	if err != nil {
		respondError(c, response.CodeInternal, "fetch settings failed", err)
		return
	}
	response.Success(c, setting)
}

// UpdateRewardSettings 更新奖励配置
func (h *Handler) UpdateRewardSettings(c *gin.Context) {
	var req service.RewardSetting
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	setting, err := h.SettingService.UpdateRewardSetting(req)
	if err != nil {
		if errors.Is(err, service.ErrRewardConfigInvalid) {
			respondError(c, response.CodeBadRequest, "reward config invalid", nil)
			return
		}
		respondError(c, response.CodeInternal, "save failed", err)
		return
	}
	response.Success(c, setting)
}

// GetSettings 获取站点配置
func (h *Handler) GetSettings(c *gin.Context) {
	config, err := h.SettingService.GetConfig(nil)
	if err != nil {
		respondError(c, response.CodeInternal, "fetch settings failed", err)
		return
	}
	response.Success(c, config)
}

// UpdateSettingsRequest 更新站点配置请求
type UpdateSettingsRequest struct {
	Key   string                 `json:"key" binding:"required"`
	Value map[string]interface{} `json:"value" binding:"required"`
}

// UpdateSettings 更新站点配置
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	value, err := h.SettingService.Update(req.Key, req.Value)
	if err != nil {
		respondError(c, response.CodeInternal, "save failed", err)
		return
	}
	response.Success(c, value)
}
