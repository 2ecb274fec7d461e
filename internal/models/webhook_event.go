package models

import (
	"time"
)

// WebhookEvent Webhook 事件落库表（审计、重放与未匹配退款记忆）
type WebhookEvent struct {
	ID              uint       `gorm:"primarykey" json:"id"`                 // 主键
	EventID         string     `gorm:"uniqueIndex;not null" json:"event_id"` // 上游事件号（幂等去重键）
	EventType       string     `gorm:"index;not null" json:"event_type"`     // 事件类型
	Status          string     `gorm:"index;default:'received'" json:"status"` // 处理状态
	SourcePaymentID string     `gorm:"index" json:"source_payment_id"`       // 事件关联的支付凭据号
	PayloadJSON     JSON       `gorm:"type:json" json:"payload"`             // 原始事件体
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`   // 处理尝试次数
	LastError       string     `gorm:"type:text" json:"last_error"`          // 最近一次失败原因
	ProcessedAt     *time.Time `json:"processed_at"`                         // 处理完成时间
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`              // 接收时间
	UpdatedAt       time.Time  `json:"updated_at"`                           // 更新时间
}

// TableName 指定表名
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
