package models

import (
	"time"

	"gorm.io/gorm"
)

// Affiliate 推广伙伴档案表
type Affiliate struct {
	ID                   uint           `gorm:"primarykey" json:"id"`                              // 主键
	UserID               uint           `gorm:"uniqueIndex;not null" json:"user_id"`               // 关联用户（一人一档）
	Slug                 string         `gorm:"uniqueIndex;not null" json:"slug"`                  // 推广短链标识
	Status               string         `gorm:"index;default:'PENDING'" json:"status"`             // 审核状态
	Website              string         `gorm:"default:''" json:"website"`                         // 申请时填写的站点
	PromotionPlan        string         `gorm:"type:text" json:"promotion_plan"`                   // 推广计划说明
	LockedCommissionRate *Money         `gorm:"type:decimal(5,2)" json:"locked_commission_rate"`   // 锁定佣金率（百分比，优先级最高）
	CustomCommissionRate *Money         `gorm:"type:decimal(5,2)" json:"custom_commission_rate"`   // 定制佣金率（百分比）
	Balance              Money          `gorm:"type:decimal(12,2);default:0" json:"balance"`       // 可提余额
	TotalEarnings        Money          `gorm:"type:decimal(12,2);default:0" json:"total_earnings"` // 累计入账
	TotalPaid            Money          `gorm:"type:decimal(12,2);default:0" json:"total_paid"`    // 累计打款
	StripeAccountID      string         `gorm:"index" json:"stripe_account_id"`                    // Stripe Connect 账户号
	StripeAccountStatus  string         `gorm:"default:'not_connected'" json:"stripe_account_status"` // 收款账户状态
	TaxFormCompleted     bool           `gorm:"not null;default:false" json:"tax_form_completed"`  // 税表是否已提交
	LastPayoutAt         *time.Time     `json:"last_payout_at"`                                    // 最近打款时间
	ApprovedAt           *time.Time     `json:"approved_at"`                                       // 审核通过时间
	CreatedAt            time.Time      `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt            time.Time      `json:"updated_at"`                                        // 更新时间
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间
}

// TableName 指定表名
func (Affiliate) TableName() string {
	return "affiliates"
}
