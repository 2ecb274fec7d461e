package models

import (
	"time"
)

// Referral 用户邀请码表（普通用户互邀，区别于推广伙伴短链）
type Referral struct {
	ID           uint       `gorm:"primarykey" json:"id"`                         // 主键
	Code         string     `gorm:"index:idx_code_referee,unique;not null" json:"code"` // 邀请码（同码多条兑换记录）
	ReferrerID   uint       `gorm:"index;not null" json:"referrer_id"`            // 邀请人用户
	RefereeID    *uint      `gorm:"index:idx_code_referee,unique" json:"referee_id"` // 被邀请人用户（接受后填入）
	Status       string     `gorm:"index;default:'PENDING'" json:"status"`        // 邀请状态
	RewardAmount Money      `gorm:"type:decimal(12,2);default:0" json:"reward_amount"` // 邀请奖励金额
	AcceptedAt   *time.Time `json:"accepted_at"`                                  // 接受时间
	CompletedAt  *time.Time `json:"completed_at"`                                 // 完成（首笔付费）时间
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`                      // 创建时间
	UpdatedAt    time.Time  `json:"updated_at"`                                   // 更新时间
}

// TableName 指定表名
func (Referral) TableName() string {
	return "referrals"
}

// AffiliateReferral 推广转化记录表（推广伙伴带来的注册用户）
type AffiliateReferral struct {
	ID               uint       `gorm:"primarykey" json:"id"`                      // 主键
	AffiliateID      uint       `gorm:"index:idx_affiliate_referee,unique;not null" json:"affiliate_id"` // 推广伙伴
	RefereeID        uint       `gorm:"index:idx_affiliate_referee,unique;uniqueIndex:idx_referee_once;not null" json:"referee_id"` // 被推荐用户（全局唯一归因）
	Status           string     `gorm:"index;default:'PENDING'" json:"status"`     // 转化状态
	CommissionMonths int        `gorm:"not null;default:0" json:"commission_months"` // 佣金有效月数（0 表示不限）
	CommissionAmount Money      `gorm:"type:decimal(12,2);default:0" json:"commission_amount"` // 首笔转化佣金金额
	ConvertedAt      *time.Time `json:"converted_at"`                              // 首次付费转化时间
	ExpiresAt        *time.Time `gorm:"index" json:"expires_at"`                   // 佣金窗口截止时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                // 更新时间
}

// TableName 指定表名
func (AffiliateReferral) TableName() string {
	return "affiliate_referrals"
}
