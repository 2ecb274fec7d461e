package service

import "errors"

// 业务层哨兵错误
var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrWeakPassword       = errors.New("weak password")

	ErrRewardConfigInvalid = errors.New("reward config invalid")

	ErrAffiliateExists    = errors.New("affiliate profile already exists")
	ErrAffiliateNotFound  = errors.New("affiliate profile not found")
	ErrAffiliateNotActive = errors.New("affiliate profile not active")

	ErrReferralCodeInvalid     = errors.New("referral code invalid")
	ErrReferralAlreadyRedeemed = errors.New("referral already redeemed")
	ErrSelfReferral            = errors.New("self referral not allowed")

	ErrNoAvailableFunds      = errors.New("no available funds to pay out")
	ErrPayoutBelowMinimum    = errors.New("payout below minimum amount")
	ErrPayoutAccountNotReady = errors.New("payout account not ready")
	ErrPayoutTaxFormRequired = errors.New("tax form required before payout")
	ErrPayoutInProgress      = errors.New("payout already in progress")
	ErrPayoutNotFound        = errors.New("payout not found")

	ErrWebhookEventInvalid = errors.New("webhook event invalid")
	ErrTenantNotFound      = errors.New("tenant not found")
)
