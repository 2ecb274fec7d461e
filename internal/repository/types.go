package repository

import "time"

// RewardTransactionListFilter 查询奖励流水列表的过滤条件
type RewardTransactionListFilter struct {
	Page        int
	PageSize    int
	ReferrerID  uint
	RefereeID   uint
	AffiliateID uint
	Type        string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// AffiliateListFilter 查询推广伙伴列表的过滤条件
type AffiliateListFilter struct {
	Page     int
	PageSize int
	Status   string
	Keyword  string
}

// PayoutListFilter 查询打款单列表的过滤条件
type PayoutListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// WebhookEventListFilter 查询 Webhook 事件列表的过滤条件
type WebhookEventListFilter struct {
	Page        int
	PageSize    int
	EventType   string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ReferralListFilter 查询邀请记录列表的过滤条件
type ReferralListFilter struct {
	Page       int
	PageSize   int
	ReferrerID uint
	Status     string
}

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page          int
	PageSize      int
	Keyword       string
	Status        string
	TenantID      uint
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	LastLoginFrom *time.Time
	LastLoginTo   *time.Time
}
