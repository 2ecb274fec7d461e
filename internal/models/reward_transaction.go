package models

import (
	"time"
)

// RewardTransaction 奖励流水表（佣金与邀请奖励的唯一事实来源）
type RewardTransaction struct {
	ID              uint       `gorm:"primarykey" json:"id"`                        // 主键
	ReferrerID      uint       `gorm:"index;uniqueIndex:idx_referrer_source;not null" json:"referrer_id"` // 受益人用户
	RefereeID       *uint      `gorm:"index" json:"referee_id"`                     // 产生付费的被推荐用户
	AffiliateID     *uint      `gorm:"index" json:"affiliate_id"`                   // 关联推广档案（佣金类流水）
	Type            string     `gorm:"index;default:'commission'" json:"type"`      // 流水类型
	Status          string     `gorm:"index;default:'pending'" json:"status"`       // 流水状态
	Amount          Money      `gorm:"type:decimal(12,2);not null" json:"amount"`   // 奖励金额
	BaseAmount      Money      `gorm:"type:decimal(12,2);default:0" json:"base_amount"` // 计佣基数（原始付费金额）
	CommissionRate  Money      `gorm:"type:decimal(5,2);default:0" json:"commission_rate"` // 入账时的佣金率快照（百分比）
	SourcePaymentID string     `gorm:"uniqueIndex:idx_referrer_source;not null" json:"source_payment_id"` // 来源支付凭据号
	Description     string     `gorm:"default:''" json:"description"`               // 摘要
	HoldEndsAt      *time.Time `gorm:"index" json:"hold_ends_at"`                   // 冻结期截止时间
	ReleasedAt      *time.Time `json:"released_at"`                                 // 解冻时间
	RefundedAt      *time.Time `json:"refunded_at"`                                 // 冲销时间
	PaidAt          *time.Time `json:"paid_at"`                                     // 打款时间
	PayoutID        *uint      `gorm:"index" json:"payout_id"`                      // 结算到的打款单
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                     // 创建时间
	UpdatedAt       time.Time  `json:"updated_at"`                                  // 更新时间
}

// TableName 指定表名
func (RewardTransaction) TableName() string {
	return "reward_transactions"
}
