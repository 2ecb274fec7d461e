package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/logger"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/queue"
	"github.com/orbisvoice-next/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 佣金处理结果枚举
const (
	CommissionResultCreated   = "created"
	CommissionResultDuplicate = "duplicate"
	CommissionResultSkipped   = "skipped"
)

// CommissionInput 佣金入账输入
type CommissionInput struct {
	RefereeID       uint
	Amount          decimal.Decimal
	SourcePaymentID string
	BillingReason   string
	Description     string
}

// CommissionOutcome 佣金入账结果
type CommissionOutcome struct {
	Result      string
	Reason      string
	Transaction *models.RewardTransaction
}

// CommissionService 佣金引擎
type CommissionService struct {
	rewardRepo    repository.RewardRepository
	affiliateRepo repository.AffiliateRepository
	referralRepo  repository.ReferralRepository
	userRepo      repository.UserRepository
	webhookRepo   repository.WebhookEventRepository
	settingSvc    *SettingService
	queueClient   *queue.Client
}

// NewCommissionService 创建佣金引擎
func NewCommissionService(
	rewardRepo repository.RewardRepository,
	affiliateRepo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	userRepo repository.UserRepository,
	webhookRepo repository.WebhookEventRepository,
	settingSvc *SettingService,
	queueClient *queue.Client,
) *CommissionService {
	return &CommissionService{
		rewardRepo:    rewardRepo,
		affiliateRepo: affiliateRepo,
		referralRepo:  referralRepo,
		userRepo:      userRepo,
		webhookRepo:   webhookRepo,
		settingSvc:    settingSvc,
		queueClient:   queueClient,
	}
}

func skippedOutcome(reason string) *CommissionOutcome {
	return &CommissionOutcome{Result: CommissionResultSkipped, Reason: reason}
}

// ProcessCommission 处理一笔付费的佣金入账。
// 幂等：同一受益人与来源支付凭据最多入账一次；续费账单与退款先行的付费不入账。
func (s *CommissionService) ProcessCommission(input CommissionInput) (*CommissionOutcome, error) {
	sourceID := strings.TrimSpace(input.SourcePaymentID)
	if input.RefereeID == 0 || sourceID == "" {
		return skippedOutcome("missing referee or source payment"), nil
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return skippedOutcome("non-positive amount"), nil
	}
	switch strings.ToLower(strings.TrimSpace(input.BillingReason)) {
	case constants.BillingReasonSubscriptionCycle, constants.BillingReasonSubscriptionUpdate:
		return skippedOutcome("renewal billing excluded"), nil
	}

	setting, err := s.settingSvc.GetRewardSetting()
	if err != nil {
		return nil, err
	}

	referee, err := s.userRepo.GetByID(input.RefereeID)
	if err != nil {
		return nil, err
	}
	if referee == nil {
		return skippedOutcome("referee not found"), nil
	}

	var outcome *CommissionOutcome
	err = s.rewardRepo.Transaction(func(tx *gorm.DB) error {
		rewardRepo := s.rewardRepo.WithTx(tx)
		affiliateRepo := s.affiliateRepo.WithTx(tx)
		referralRepo := s.referralRepo.WithTx(tx)

		beneficiary, err := s.resolveBeneficiary(affiliateRepo, referralRepo, referee, setting, time.Now())
		if err != nil {
			return err
		}
		if beneficiary == nil {
			outcome = skippedOutcome("no attribution found")
			return nil
		}
		if beneficiary.ReferrerID == referee.ID {
			outcome = skippedOutcome("self referral")
			return nil
		}

		// 幂等：来源支付凭据已入账过则直接返回，含已冲销的历史流水
		existing, err := rewardRepo.GetByReferrerAndSource(beneficiary.ReferrerID, sourceID)
		if err != nil {
			return err
		}
		if existing != nil {
			outcome = &CommissionOutcome{Result: CommissionResultDuplicate, Transaction: existing}
			return nil
		}

		rate := beneficiary.Rate
		amount := input.Amount.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
		if amount.LessThanOrEqual(decimal.Zero) {
			outcome = skippedOutcome("zero commission amount")
			return nil
		}

		now := time.Now()
		txn := &models.RewardTransaction{
			ReferrerID:      beneficiary.ReferrerID,
			RefereeID:       &referee.ID,
			AffiliateID:     beneficiary.AffiliateID,
			Type:            constants.RewardTypeCommission,
			Status:          constants.RewardStatusPending,
			Amount:          models.NewMoneyFromDecimal(amount),
			BaseAmount:      models.NewMoneyFromDecimal(input.Amount),
			CommissionRate:  models.NewMoneyFromDecimal(rate),
			SourcePaymentID: sourceID,
			Description:     strings.TrimSpace(input.Description),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		// 退款先于佣金到达：直接落为已冲销流水留痕，不计余额
		unmatched, err := s.webhookRepo.WithTx(tx).ListUnmatchedRefundsBySource(sourceID)
		if err != nil {
			return err
		}
		if len(unmatched) > 0 {
			txn.Status = constants.RewardStatusRefunded
			txn.RefundedAt = &now
			if err := rewardRepo.Create(txn); err != nil {
				if isUniqueViolation(err) {
					outcome = &CommissionOutcome{Result: CommissionResultDuplicate}
					return nil
				}
				return err
			}
			for i := range unmatched {
				if err := s.webhookRepo.WithTx(tx).MarkStatus(unmatched[i].ID, constants.WebhookEventStatusProcessed, ""); err != nil {
					return err
				}
			}
			outcome = skippedOutcome("refund arrived before commission")
			return nil
		}

		if setting.RefundHoldDays > 0 {
			holdEndsAt := now.Add(time.Duration(setting.RefundHoldDays) * 24 * time.Hour)
			txn.HoldEndsAt = &holdEndsAt
		} else {
			txn.Status = constants.RewardStatusAvailable
			txn.ReleasedAt = &now
		}

		if err := rewardRepo.Create(txn); err != nil {
			if isUniqueViolation(err) {
				outcome = &CommissionOutcome{Result: CommissionResultDuplicate}
				return nil
			}
			return err
		}

		balanceDelta := decimal.Zero
		if txn.Status == constants.RewardStatusAvailable {
			balanceDelta = amount
		}
		if beneficiary.AffiliateID != nil {
			if err := affiliateRepo.AddBalances(*beneficiary.AffiliateID, balanceDelta, amount, decimal.Zero); err != nil {
				return err
			}
		}

		if err := s.markConversion(affiliateRepo, referralRepo, beneficiary, amount, now, setting); err != nil {
			return err
		}

		outcome = &CommissionOutcome{Result: CommissionResultCreated, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.Result == CommissionResultCreated && outcome.Transaction.HoldEndsAt != nil && s.queueClient != nil {
		if err := s.queueClient.EnqueueRewardHoldRelease(*outcome.Transaction.HoldEndsAt); err != nil {
			logger.Warnw("enqueue_hold_release_failed", "error", err, "transaction_id", outcome.Transaction.ID)
		}
	}
	return outcome, nil
}

// commissionBeneficiary 归因解析结果
type commissionBeneficiary struct {
	ReferrerID        uint
	AffiliateID       *uint
	Rate              decimal.Decimal
	AffiliateReferral *models.AffiliateReferral
	Referral          *models.Referral
}

// resolveBeneficiary 解析受益人：推广转化记录优先，其次普通邀请关系。
// 佣金率解析顺序：锁定佣金率 > 定制佣金率 > 档位比例。
func (s *CommissionService) resolveBeneficiary(
	affiliateRepo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	referee *models.User,
	setting RewardSetting,
	now time.Time,
) (*commissionBeneficiary, error) {
	affReferral, err := affiliateRepo.GetAffiliateReferralByRefereeForUpdate(referee.ID)
	if err != nil {
		return nil, err
	}
	if affReferral != nil {
		if affReferral.ExpiresAt != nil && now.After(*affReferral.ExpiresAt) {
			return nil, nil
		}
		affiliate, err := affiliateRepo.GetByID(affReferral.AffiliateID)
		if err != nil {
			return nil, err
		}
		if affiliate == nil || affiliate.Status != constants.AffiliateStatusActive {
			return nil, nil
		}
		owner, err := s.userRepo.GetByID(affiliate.UserID)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, nil
		}
		rate := resolveCommissionRate(affiliate, owner, setting)
		return &commissionBeneficiary{
			ReferrerID:        affiliate.UserID,
			AffiliateID:       &affiliate.ID,
			Rate:              rate,
			AffiliateReferral: affReferral,
		}, nil
	}

	if referee.ReferralCodeUsed == nil || strings.TrimSpace(*referee.ReferralCodeUsed) == "" {
		return nil, nil
	}
	referral, err := referralRepo.GetByCode(*referee.ReferralCodeUsed)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, nil
	}
	referrer, err := s.userRepo.GetByID(referral.ReferrerID)
	if err != nil {
		return nil, err
	}
	if referrer == nil || referrer.Status != constants.UserStatusActive {
		return nil, nil
	}
	rate := decimal.NewFromFloat(setting.RateForLevel(referrer.CommissionLevel))
	return &commissionBeneficiary{
		ReferrerID: referral.ReferrerID,
		Rate:       rate,
		Referral:   referral,
	}, nil
}

func resolveCommissionRate(affiliate *models.Affiliate, owner *models.User, setting RewardSetting) decimal.Decimal {
	if affiliate.LockedCommissionRate != nil && affiliate.LockedCommissionRate.Decimal.GreaterThan(decimal.Zero) {
		return affiliate.LockedCommissionRate.Decimal
	}
	if affiliate.CustomCommissionRate != nil && affiliate.CustomCommissionRate.Decimal.GreaterThan(decimal.Zero) {
		return affiliate.CustomCommissionRate.Decimal
	}
	return decimal.NewFromFloat(setting.RateForLevel(owner.CommissionLevel))
}

// markConversion 首笔计佣付费把归因记录推进到转化态
func (s *CommissionService) markConversion(
	affiliateRepo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	beneficiary *commissionBeneficiary,
	amount decimal.Decimal,
	now time.Time,
	setting RewardSetting,
) error {
	if beneficiary.AffiliateReferral != nil && beneficiary.AffiliateReferral.Status == constants.AffiliateReferralStatusPending {
		referral := beneficiary.AffiliateReferral
		referral.Status = constants.AffiliateReferralStatusConverted
		referral.ConvertedAt = &now
		referral.CommissionAmount = models.NewMoneyFromDecimal(amount)
		if setting.CommissionDurationMonths > 0 {
			expiresAt := now.AddDate(0, setting.CommissionDurationMonths, 0)
			referral.ExpiresAt = &expiresAt
			referral.CommissionMonths = setting.CommissionDurationMonths
		}
		referral.UpdatedAt = now
		if err := affiliateRepo.UpdateAffiliateReferral(referral); err != nil {
			return err
		}
	}
	if beneficiary.Referral != nil && beneficiary.Referral.Status != constants.ReferralStatusCompleted {
		referral := beneficiary.Referral
		referral.Status = constants.ReferralStatusCompleted
		referral.CompletedAt = &now
		referral.UpdatedAt = now
		if err := referralRepo.Update(referral); err != nil {
			return err
		}
	}
	return nil
}

// ReverseBySourcePayment 按来源支付凭据冲销佣金。
// 只冲销待结与可结流水；已打款与在途流水不回收。返回冲销条数。
func (s *CommissionService) ReverseBySourcePayment(sourcePaymentID string) (int, error) {
	sourceID := strings.TrimSpace(sourcePaymentID)
	if sourceID == "" {
		return 0, fmt.Errorf("source payment id is required")
	}

	reversed := 0
	err := s.rewardRepo.Transaction(func(tx *gorm.DB) error {
		rewardRepo := s.rewardRepo.WithTx(tx)
		affiliateRepo := s.affiliateRepo.WithTx(tx)

		txns, err := rewardRepo.ListBySourcePaymentForUpdate(sourceID, []string{
			constants.RewardStatusPending,
			constants.RewardStatusAvailable,
		})
		if err != nil {
			return err
		}

		now := time.Now()
		for i := range txns {
			txn := txns[i]
			affected, err := rewardRepo.UpdateStatusGuarded(txn.ID, []string{
				constants.RewardStatusPending,
				constants.RewardStatusAvailable,
			}, map[string]interface{}{
				"status":      constants.RewardStatusRefunded,
				"refunded_at": now,
				"updated_at":  now,
			})
			if err != nil {
				return err
			}
			if affected == 0 {
				continue
			}

			if txn.AffiliateID != nil {
				balanceDelta := decimal.Zero
				if txn.Status == constants.RewardStatusAvailable {
					balanceDelta = txn.Amount.Decimal.Neg()
				}
				if err := affiliateRepo.AddBalances(*txn.AffiliateID, balanceDelta, txn.Amount.Decimal.Neg(), decimal.Zero); err != nil {
					return err
				}
			}
			reversed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reversed, nil
}

// ClearPendingHolds 释放冻结期已到的待结流水并同步余额
func (s *CommissionService) ClearPendingHolds() (int, error) {
	released := 0
	err := s.rewardRepo.Transaction(func(tx *gorm.DB) error {
		rewardRepo := s.rewardRepo.WithTx(tx)
		affiliateRepo := s.affiliateRepo.WithTx(tx)

		now := time.Now()
		due, err := rewardRepo.ListDueHoldsForUpdate(now)
		if err != nil {
			return err
		}
		for i := range due {
			txn := due[i]
			affected, err := rewardRepo.UpdateStatusGuarded(txn.ID, []string{constants.RewardStatusPending}, map[string]interface{}{
				"status":      constants.RewardStatusAvailable,
				"released_at": now,
				"updated_at":  now,
			})
			if err != nil {
				return err
			}
			if affected == 0 {
				continue
			}
			if txn.AffiliateID != nil {
				if err := affiliateRepo.AddBalances(*txn.AffiliateID, txn.Amount.Decimal, decimal.Zero, decimal.Zero); err != nil {
					return err
				}
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
