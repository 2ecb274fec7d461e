package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户表
type User struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                       // 主键
	Email              string         `gorm:"uniqueIndex;not null" json:"email"`          // 邮箱
	Username           string         `gorm:"uniqueIndex;not null" json:"username"`       // 用户名（默认推广码的来源）
	PasswordHash       string         `gorm:"not null" json:"-"`                          // 密码哈希（不返回给前端）
	DisplayName        string         `gorm:"default:''" json:"display_name"`             // 昵称
	TenantID           *uint          `gorm:"index" json:"tenant_id"`                     // 所属租户
	Status             string         `gorm:"default:'active'" json:"status"`             // 账号状态
	IsAffiliate        bool           `gorm:"not null;default:false" json:"is_affiliate"` // 是否已开通推广身份
	CommissionLevel    string         `gorm:"default:''" json:"commission_level"`         // 佣金档位（LOW/MED/HIGH，空表示默认档）
	ReferralCodeUsed   *string        `gorm:"index" json:"referral_code_used"`            // 注册时使用的邀请码
	TokenVersion       uint64         `gorm:"not null;default:0" json:"-"`                // Token 版本（用于全量失效）
	TokenInvalidBefore *time.Time     `gorm:"index" json:"-"`                             // 该时间点前签发的 Token 失效
	LastLoginAt        *time.Time     `json:"last_login_at"`                              // 最后登录时间
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                    // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
