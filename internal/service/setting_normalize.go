package service

import (
	"strings"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
)

const (
	settingTextMaxRuneCount = 200
)

func normalizeSettingValueByKey(key string, value map[string]interface{}) models.JSON {
	switch key {
	case constants.SettingKeyRewardConfig:
		return normalizeRewardSettingMap(value)
	case constants.SettingKeySiteConfig:
		return normalizeSiteSetting(value)
	default:
		return models.JSON(value)
	}
}

func normalizeSiteSetting(value map[string]interface{}) models.JSON {
	result := models.JSON{}
	for k, v := range value {
		result[k] = v
	}
	if name, ok := result["site_name"]; ok {
		result["site_name"] = normalizeSettingText(name)
	}
	currency := strings.ToUpper(normalizeSettingText(result[constants.SettingFieldSiteCurrency]))
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}
	result[constants.SettingFieldSiteCurrency] = currency
	return result
}

func normalizeSettingText(raw interface{}) string {
	return normalizeSettingTextWithRuneLimit(raw, settingTextMaxRuneCount)
}

func normalizeSettingTextWithRuneLimit(raw interface{}, maxRuneCount int) string {
	value, _ := raw.(string)
	value = strings.TrimSpace(value)
	if maxRuneCount > 0 {
		runes := []rune(value)
		if len(runes) > maxRuneCount {
			value = string(runes[:maxRuneCount])
		}
	}
	return value
}

func parseSettingBool(raw interface{}) bool {
	switch value := raw.(type) {
	case bool:
		return value
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(value))
		return trimmed == "true" || trimmed == "1" || trimmed == "on"
	case int:
		return value != 0
	case int64:
		return value != 0
	case float64:
		return value != 0
	default:
		return false
	}
}
