package constants

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 租户订阅状态常量
const (
	TenantSubscriptionActive   = "ACTIVE"
	TenantSubscriptionPastDue  = "PAST_DUE"
	TenantSubscriptionCanceled = "CANCELED"
	TenantSubscriptionNone     = "NONE"
)

// 租户订阅档位常量
const (
	SubscriptionTierFree     = "FREE"
	SubscriptionTierStarter  = "STARTER"
	SubscriptionTierPro      = "PRO"
	SubscriptionTierScale    = "SCALE"
	SubscriptionTierLifetime = "LIFETIME"
)

// 各订阅档位每月语音分钟额度
const (
	UsageMinutesDefault  = 100
	UsageMinutesStarter  = 1000
	UsageMinutesLifetime = 1000
	UsageMinutesPro      = 10000
	UsageMinutesScale    = 100000
)

// 推广伙伴状态常量
const (
	AffiliateStatusPending  = "PENDING"
	AffiliateStatusActive   = "ACTIVE"
	AffiliateStatusRejected = "REJECTED"
	AffiliateStatusDisabled = "DISABLED"
)

// 佣金档位常量
const (
	CommissionLevelLow  = "LOW"
	CommissionLevelMed  = "MED"
	CommissionLevelHigh = "HIGH"
)

// 奖励流水状态常量
const (
	RewardStatusPending    = "pending"
	RewardStatusAvailable  = "available"
	RewardStatusInTransfer = "in_transfer"
	RewardStatusPaid       = "paid"
	RewardStatusRefunded   = "refunded"
)

// 奖励流水类型常量
const (
	RewardTypeCommission = "commission"
	RewardTypeSignup     = "signup"
)

// 邀请关系状态常量
const (
	ReferralStatusPending   = "PENDING"
	ReferralStatusAccepted  = "ACCEPTED"
	ReferralStatusCompleted = "COMPLETED"
)

// 推广转化记录状态常量
const (
	AffiliateReferralStatusPending   = "PENDING"
	AffiliateReferralStatusConverted = "CONVERTED"
)

// 打款状态常量
const (
	PayoutStatusInTransfer = "IN_TRANSFER"
	PayoutStatusPaid       = "PAID"
	PayoutStatusFailed     = "FAILED"
)

// 打款方式常量
const (
	PayoutMethodStripe = "stripe"
	PayoutMethodManual = "manual"
)

// Stripe 收款账户状态常量
const (
	StripeAccountStatusNotConnected = "not_connected"
	StripeAccountStatusPending      = "pending"
	StripeAccountStatusActive       = "active"
	StripeAccountStatusRestricted   = "restricted"
)

// Webhook 事件处理状态常量
const (
	WebhookEventStatusReceived  = "received"
	WebhookEventStatusProcessed = "processed"
	WebhookEventStatusSkipped   = "skipped"
	WebhookEventStatusFailed    = "failed"
	WebhookEventStatusUnmatched = "unmatched"
)

// Stripe 事件类型常量
const (
	StripeEventCheckoutCompleted   = "checkout.session.completed"
	StripeEventInvoicePaid         = "invoice.paid"
	StripeEventInvoicePaySucceeded = "invoice.payment_succeeded"
	StripeEventChargeRefunded      = "charge.refunded"
	StripeEventSubscriptionUpdated = "customer.subscription.updated"
	StripeEventSubscriptionDeleted = "customer.subscription.deleted"
	StripeEventAccountUpdated      = "account.updated"
)

// Stripe 账期原因常量（续费与变更账单不产生佣金）
const (
	BillingReasonSubscriptionCycle  = "subscription_cycle"
	BillingReasonSubscriptionUpdate = "subscription_update"
	BillingReasonSubscriptionCreate = "subscription_create"
)

// 队列常量
const (
	QueueDefault          = "default"
	TaskRewardHoldRelease = "reward:hold_release"
	TaskWebhookReplay     = "webhook:replay"
	TaskPayoutSettle      = "payout:settle"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "ov"
)

// 设置键常量
const (
	SettingKeySiteConfig     = "site_config"
	SettingKeyRewardConfig   = "reward_config"
	SettingFieldSiteCurrency = "currency"
)

// 币种常量
const (
	SiteCurrencyDefault = "USD"
)

// 税务合规申报阈值（美元，年度累计打款达到后需先完成税表）
const (
	TaxFormThresholdUSD = 600
)
