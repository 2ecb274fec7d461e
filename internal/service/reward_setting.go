package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
)

const (
	rewardCommissionRateMin  = 0
	rewardCommissionRateMax  = 100
	rewardHoldDaysMin        = 0
	rewardHoldDaysMax        = 365
	rewardPayoutMinimumFloor = 0
	rewardFeePercentMax      = 20
	rewardDurationMonthsMax  = 120
	rewardSignupAmountMax    = 10000
)

// RewardSetting 奖励与打款配置
type RewardSetting struct {
	CommissionRateLow        float64 `json:"commission_rate_low"`
	CommissionRateMed        float64 `json:"commission_rate_med"`
	CommissionRateHigh       float64 `json:"commission_rate_high"`
	DefaultCommissionLevel   string  `json:"default_commission_level"`
	RefundHoldDays           int     `json:"refund_hold_days"`
	PayoutMinimum            float64 `json:"payout_minimum"`
	TransactionFeePercent    float64 `json:"transaction_fee_percent"`
	CommissionDurationMonths int     `json:"commission_duration_months"`
	SignupRewardAmount       float64 `json:"signup_reward_amount"`
}

// RewardDefaultSetting 默认奖励配置
func RewardDefaultSetting() RewardSetting {
	return NormalizeRewardSetting(RewardSetting{
		CommissionRateLow:        10,
		CommissionRateMed:        20,
		CommissionRateHigh:       30,
		DefaultCommissionLevel:   constants.CommissionLevelLow,
		RefundHoldDays:           14,
		PayoutMinimum:            100,
		TransactionFeePercent:    3.4,
		CommissionDurationMonths: 12,
		SignupRewardAmount:       10,
	})
}

// NormalizeRewardSetting 归一化奖励配置
func NormalizeRewardSetting(setting RewardSetting) RewardSetting {
	setting.CommissionRateLow = clampRewardRate(setting.CommissionRateLow)
	setting.CommissionRateMed = clampRewardRate(setting.CommissionRateMed)
	setting.CommissionRateHigh = clampRewardRate(setting.CommissionRateHigh)

	level := strings.ToUpper(strings.TrimSpace(setting.DefaultCommissionLevel))
	switch level {
	case constants.CommissionLevelLow, constants.CommissionLevelMed, constants.CommissionLevelHigh:
		setting.DefaultCommissionLevel = level
	default:
		setting.DefaultCommissionLevel = constants.CommissionLevelLow
	}

	if setting.RefundHoldDays < rewardHoldDaysMin {
		setting.RefundHoldDays = rewardHoldDaysMin
	}
	if setting.RefundHoldDays > rewardHoldDaysMax {
		setting.RefundHoldDays = rewardHoldDaysMax
	}

	setting.PayoutMinimum = roundRewardDecimal(setting.PayoutMinimum)
	if setting.PayoutMinimum < rewardPayoutMinimumFloor {
		setting.PayoutMinimum = rewardPayoutMinimumFloor
	}

	setting.TransactionFeePercent = roundRewardDecimal(setting.TransactionFeePercent)
	if setting.TransactionFeePercent < 0 {
		setting.TransactionFeePercent = 0
	}
	if setting.TransactionFeePercent > rewardFeePercentMax {
		setting.TransactionFeePercent = rewardFeePercentMax
	}

	if setting.CommissionDurationMonths < 0 {
		setting.CommissionDurationMonths = 0
	}
	if setting.CommissionDurationMonths > rewardDurationMonthsMax {
		setting.CommissionDurationMonths = rewardDurationMonthsMax
	}

	setting.SignupRewardAmount = roundRewardDecimal(setting.SignupRewardAmount)
	if setting.SignupRewardAmount < 0 {
		setting.SignupRewardAmount = 0
	}
	if setting.SignupRewardAmount > rewardSignupAmountMax {
		setting.SignupRewardAmount = rewardSignupAmountMax
	}
	return setting
}

// ValidateRewardSetting 校验奖励配置
func ValidateRewardSetting(setting RewardSetting) error {
	normalized := NormalizeRewardSetting(setting)
	if normalized.CommissionRateLow > normalized.CommissionRateMed ||
		normalized.CommissionRateMed > normalized.CommissionRateHigh {
		return fmt.Errorf("%w: 佣金档位比例必须递增", ErrRewardConfigInvalid)
	}
	if normalized.PayoutMinimum < rewardPayoutMinimumFloor {
		return fmt.Errorf("%w: 起付金额不能小于 0", ErrRewardConfigInvalid)
	}
	return nil
}

// RewardSettingToMap 将奖励配置转换为 settings 存储结构
func RewardSettingToMap(setting RewardSetting) map[string]interface{} {
	normalized := NormalizeRewardSetting(setting)
	return map[string]interface{}{
		"commission_rate_low":        normalized.CommissionRateLow,
		"commission_rate_med":        normalized.CommissionRateMed,
		"commission_rate_high":       normalized.CommissionRateHigh,
		"default_commission_level":   normalized.DefaultCommissionLevel,
		"refund_hold_days":           normalized.RefundHoldDays,
		"payout_minimum":             normalized.PayoutMinimum,
		"transaction_fee_percent":    normalized.TransactionFeePercent,
		"commission_duration_months": normalized.CommissionDurationMonths,
		"signup_reward_amount":       normalized.SignupRewardAmount,
	}
}

// RateForLevel 按佣金档位取比例（百分比）
func (s RewardSetting) RateForLevel(level string) float64 {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case constants.CommissionLevelHigh:
		return s.CommissionRateHigh
	case constants.CommissionLevelMed:
		return s.CommissionRateMed
	case constants.CommissionLevelLow:
		return s.CommissionRateLow
	default:
		return s.RateForLevel(s.DefaultCommissionLevel)
	}
}

func rewardSettingFromJSON(raw models.JSON, fallback RewardSetting) RewardSetting {
	result := fallback

	if v, ok := raw["commission_rate_low"]; ok {
		if parsed, err := parseSettingFloat(v); err == nil {
			result.CommissionRateLow = parsed
		}
	}
	if v, ok := raw["commission_rate_med"]; ok {
		if parsed, err := parseSettingFloat(v); err == nil {
			result.CommissionRateMed = parsed
		}
	}
	if v, ok := raw["commission_rate_high"]; ok {
		if parsed, err := parseSettingFloat(v); err == nil {
			result.CommissionRateHigh = parsed
		}
	}
	if v, ok := raw["default_commission_level"]; ok {
		result.DefaultCommissionLevel = normalizeSettingText(v)
	}
	if v, ok := raw["refund_hold_days"]; ok {
		if parsed, err := parseSettingInt(v); err == nil {
			result.RefundHoldDays = parsed
		}
	}
	if v, ok := raw["payout_minimum"]; ok {
		if parsed, err := parseSettingFloat(v); err == nil {
			result.PayoutMinimum = parsed
		}
	}
	if v, ok := raw["transaction_fee_percent"]; ok {
		if parsed, err := parseSettingFloat(v); err == nil {
			result.TransactionFeePercent = parsed
		}
	}
	if v, ok := raw["commission_duration_months"]; ok {
		if parsed, err := parseSettingInt(v); err == nil {
			result.CommissionDurationMonths = parsed
		}
	}
	if v, ok := raw["signup_reward_amount"]; ok {
		if parsed, err := parseSettingFloat(v); err == nil {
			result.SignupRewardAmount = parsed
		}
	}

	return NormalizeRewardSetting(result)
}

func normalizeRewardSettingMap(value map[string]interface{}) models.JSON {
	setting := rewardSettingFromJSON(models.JSON(value), RewardDefaultSetting())
	return models.JSON(RewardSettingToMap(setting))
}

// GetRewardSetting 获取奖励设置（优先 settings，空时回退默认）
func (s *SettingService) GetRewardSetting() (RewardSetting, error) {
	fallback := RewardDefaultSetting()
	if s == nil {
		return fallback, nil
	}

	value, err := s.GetByKey(constants.SettingKeyRewardConfig)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return rewardSettingFromJSON(value, fallback), nil
}

// UpdateRewardSetting 更新奖励设置
func (s *SettingService) UpdateRewardSetting(setting RewardSetting) (RewardSetting, error) {
	normalized := NormalizeRewardSetting(setting)
	if err := ValidateRewardSetting(normalized); err != nil {
		return RewardDefaultSetting(), err
	}
	if _, err := s.Update(constants.SettingKeyRewardConfig, RewardSettingToMap(normalized)); err != nil {
		return RewardDefaultSetting(), err
	}
	return normalized, nil
}

func parseSettingFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, fmt.Errorf("empty string")
		}
		return strconv.ParseFloat(trimmed, 64)
	default:
		return 0, fmt.Errorf("unsupported value type")
	}
}

func roundRewardDecimal(value float64) float64 {
	return math.Round(value*100) / 100
}

func clampRewardRate(rate float64) float64 {
	rate = roundRewardDecimal(rate)
	if rate < rewardCommissionRateMin {
		return rewardCommissionRateMin
	}
	if rate > rewardCommissionRateMax {
		return rewardCommissionRateMax
	}
	return rate
}
