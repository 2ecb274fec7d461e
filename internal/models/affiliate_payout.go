package models

import (
	"time"
)

// AffiliatePayout 打款单表（一次对单个推广伙伴的结算）
type AffiliatePayout struct {
	ID               uint       `gorm:"primarykey" json:"id"`                      // 主键
	AffiliateID      uint       `gorm:"index;not null" json:"affiliate_id"`        // 收款推广伙伴
	GrossAmount      Money      `gorm:"type:decimal(12,2);not null" json:"gross_amount"` // 结算总额
	FeeAmount        Money      `gorm:"type:decimal(12,2);default:0" json:"fee_amount"`  // 通道手续费
	NetAmount        Money      `gorm:"type:decimal(12,2);not null" json:"net_amount"`   // 实际到账金额
	Status           string     `gorm:"index;default:'IN_TRANSFER'" json:"status"` // 打款状态
	Method           string     `gorm:"default:'stripe'" json:"method"`            // 打款方式
	TransactionCount int        `gorm:"not null;default:0" json:"transaction_count"` // 覆盖的流水条数
	StripeTransferID string     `gorm:"index" json:"stripe_transfer_id"`           // Stripe Transfer 凭据号
	FailureReason    string     `gorm:"default:''" json:"failure_reason"`          // 失败原因
	SettledAt        *time.Time `json:"settled_at"`                                // 到账确认时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                // 更新时间
}

// TableName 指定表名
func (AffiliatePayout) TableName() string {
	return "affiliate_payouts"
}
