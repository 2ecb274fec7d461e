package models

import (
	"time"

	"gorm.io/gorm"
)

// Tenant 租户表（每个客户工作区一条）
type Tenant struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                          // 主键
	Name               string         `gorm:"not null" json:"name"`                          // 租户名称
	OwnerUserID        uint           `gorm:"index;not null" json:"owner_user_id"`           // 拥有者用户
	StripeCustomerID   *string        `gorm:"uniqueIndex" json:"stripe_customer_id"`         // Stripe 客户号（账单事件按此回查租户，空为 NULL 以兼容唯一索引）
	SubscriptionID     string         `gorm:"index" json:"subscription_id"`                  // Stripe 订阅号
	SubscriptionTier   string         `gorm:"default:'FREE'" json:"subscription_tier"`       // 订阅档位
	SubscriptionStatus string         `gorm:"default:'NONE'" json:"subscription_status"`     // 订阅状态
	UsageMinutesLimit  int            `gorm:"not null;default:0" json:"usage_minutes_limit"` // 每月语音分钟额度
	LifetimeDeal       bool           `gorm:"not null;default:false" json:"lifetime_deal"`   // 是否买断用户（LTD）
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt          time.Time      `json:"updated_at"`                                    // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}
