package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/logger"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/payment/stripe"
	"github.com/orbisvoice-next/internal/queue"
	"github.com/orbisvoice-next/internal/repository"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 在途打款单兜底结算的延迟时间
const payoutSettleFallbackDelay = 10 * time.Minute

// TransferClient 打款通道（Stripe Connect 划款）
type TransferClient interface {
	CreateTransfer(ctx context.Context, input stripe.TransferInput) (*stripe.TransferResult, error)
}

// PayoutService 打款结算业务服务
type PayoutService struct {
	affiliateRepo repository.AffiliateRepository
	rewardRepo    repository.RewardRepository
	payoutRepo    repository.PayoutRepository
	settingSvc    *SettingService
	transfers     TransferClient
	queueClient   *queue.Client
}

// NewPayoutService 创建打款服务
func NewPayoutService(
	affiliateRepo repository.AffiliateRepository,
	rewardRepo repository.RewardRepository,
	payoutRepo repository.PayoutRepository,
	settingSvc *SettingService,
	transfers TransferClient,
	queueClient *queue.Client,
) *PayoutService {
	return &PayoutService{
		affiliateRepo: affiliateRepo,
		rewardRepo:    rewardRepo,
		payoutRepo:    payoutRepo,
		settingSvc:    settingSvc,
		transfers:     transfers,
		queueClient:   queueClient,
	}
}

// PayoutQueueItem 打款队列条目
type PayoutQueueItem struct {
	AffiliateID     uint            `json:"affiliate_id"`
	UserID          uint            `json:"user_id"`
	Slug            string          `json:"slug"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	FeeAmount       decimal.Decimal `json:"fee_amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	TransactionNum  int64           `json:"transaction_num"`
	Eligible        bool            `json:"eligible"`
	BlockedReason   string          `json:"blocked_reason,omitempty"`
	YTDEarnings     decimal.Decimal `json:"ytd_earnings"`
	TaxFormRequired bool            `json:"tax_form_required"`
}

// BulkPayoutResult 批量打款结果
type BulkPayoutResult struct {
	Succeeded []uint          `json:"succeeded"`
	Failed    map[uint]string `json:"failed"`
}

// ProcessPayout 对单个推广伙伴发起一次全额结算。
// 流程：锁定可结流水并转入在途，调用划款通道，按结果落为已打款或回滚为可结。
func (s *PayoutService) ProcessPayout(ctx context.Context, affiliateID uint) (*models.AffiliatePayout, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	setting, err := s.settingSvc.GetRewardSetting()
	if err != nil {
		return nil, err
	}

	var payout *models.AffiliatePayout
	var gross decimal.Decimal
	var destination string
	var txnIDs []uint

	err = s.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.affiliateRepo.WithTx(tx)
		rewardRepo := s.rewardRepo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)

		affiliate, err := affiliateRepo.GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		if affiliate.Status != constants.AffiliateStatusActive {
			return ErrAffiliateNotActive
		}
		if affiliate.StripeAccountStatus != constants.StripeAccountStatusActive || affiliate.StripeAccountID == "" {
			return ErrPayoutAccountNotReady
		}

		inTransfer, err := payoutRepo.CountInTransferByAffiliate(affiliate.ID)
		if err != nil {
			return err
		}
		if inTransfer > 0 {
			return ErrPayoutInProgress
		}

		txns, err := rewardRepo.ListAvailableByAffiliateForUpdate(affiliate.ID)
		if err != nil {
			return err
		}
		gross = decimal.Zero
		txnIDs = txnIDs[:0]
		for i := range txns {
			gross = gross.Add(txns[i].Amount.Decimal)
			txnIDs = append(txnIDs, txns[i].ID)
		}
		if len(txnIDs) == 0 {
			return ErrNoAvailableFunds
		}
		if gross.LessThan(decimal.NewFromFloat(setting.PayoutMinimum)) {
			return ErrPayoutBelowMinimum
		}

		// 年度累计打款达到申报阈值后必须先完成税表
		ytdPaid, err := rewardRepo.SumPaidSince(affiliate.UserID, yearStart(time.Now()))
		if err != nil {
			return err
		}
		if ytdPaid.Add(gross).GreaterThanOrEqual(decimal.NewFromInt(constants.TaxFormThresholdUSD)) && !affiliate.TaxFormCompleted {
			return ErrPayoutTaxFormRequired
		}

		feePct := decimal.NewFromFloat(setting.TransactionFeePercent)
		net := gross.Mul(decimal.NewFromInt(100).Sub(feePct)).Div(decimal.NewFromInt(100)).RoundDown(2)
		fee := gross.Sub(net)

		now := time.Now()
		payout = &models.AffiliatePayout{
			AffiliateID:      affiliate.ID,
			GrossAmount:      models.NewMoneyFromDecimal(gross),
			FeeAmount:        models.NewMoneyFromDecimal(fee),
			NetAmount:        models.NewMoneyFromDecimal(net),
			Status:           constants.PayoutStatusInTransfer,
			Method:           constants.PayoutMethodStripe,
			TransactionCount: len(txnIDs),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := payoutRepo.Create(payout); err != nil {
			return err
		}

		if err := rewardRepo.BatchUpdate(txnIDs, map[string]interface{}{
			"status":     constants.RewardStatusInTransfer,
			"payout_id":  payout.ID,
			"updated_at": now,
		}); err != nil {
			return err
		}
		// 在途即扣减可提余额，避免重复结算
		if err := affiliateRepo.AddBalances(affiliate.ID, gross.Neg(), decimal.Zero, decimal.Zero); err != nil {
			return err
		}

		destination = affiliate.StripeAccountID
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 进程在划款与确认之间崩溃时由兜底任务补偿
	s.scheduleSettleFallback(payout.ID)

	transfer, transferErr := s.transfers.CreateTransfer(ctx, stripe.TransferInput{
		Amount:         payout.NetAmount.Decimal,
		Currency:       constants.SiteCurrencyDefault,
		Destination:    destination,
		Description:    fmt.Sprintf("affiliate payout #%d", payout.ID),
		IdempotencyKey: fmt.Sprintf("payout-%d", payout.ID),
	})

	if transferErr != nil {
		if rollbackErr := s.rollbackPayout(payout.ID, transferErr.Error()); rollbackErr != nil {
			logger.Errorw("payout_rollback_failed", "payout_id", payout.ID, "error", rollbackErr)
			return nil, rollbackErr
		}
		return nil, fmt.Errorf("transfer failed: %w", transferErr)
	}

	if err := s.settlePayout(payout.ID, transfer.TransferID); err != nil {
		return nil, err
	}
	return s.payoutRepo.GetByID(payout.ID)
}

func (s *PayoutService) scheduleSettleFallback(payoutID uint) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	payload := queue.PayoutSettlePayload{PayoutID: payoutID}
	if err := s.queueClient.EnqueuePayoutSettle(payload, asynq.ProcessIn(payoutSettleFallbackDelay)); err != nil {
		logger.Warnw("payout_settle_fallback_enqueue_failed", "payout_id", payoutID, "error", err)
	}
}

// ResolveInTransfer 补偿滞留在途的打款单：带同一幂等键重放划款请求，
// 通道侧会对重复请求去重，按最终结果落为已打款或回滚。
func (s *PayoutService) ResolveInTransfer(ctx context.Context, payoutID uint) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payout, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return err
	}
	if payout == nil {
		return ErrPayoutNotFound
	}
	if payout.Status != constants.PayoutStatusInTransfer {
		return nil
	}
	affiliate, err := s.affiliateRepo.GetByID(payout.AffiliateID)
	if err != nil {
		return err
	}
	if affiliate == nil || affiliate.StripeAccountID == "" {
		return s.rollbackPayout(payout.ID, "payout account missing")
	}

	transfer, transferErr := s.transfers.CreateTransfer(ctx, stripe.TransferInput{
		Amount:         payout.NetAmount.Decimal,
		Currency:       constants.SiteCurrencyDefault,
		Destination:    affiliate.StripeAccountID,
		Description:    fmt.Sprintf("affiliate payout #%d", payout.ID),
		IdempotencyKey: fmt.Sprintf("payout-%d", payout.ID),
	})
	if transferErr != nil {
		return s.rollbackPayout(payout.ID, transferErr.Error())
	}
	return s.settlePayout(payout.ID, transfer.TransferID)
}

// settlePayout 划款成功后确认结算
func (s *PayoutService) settlePayout(payoutID uint, transferID string) error {
	return s.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.affiliateRepo.WithTx(tx)
		rewardRepo := s.rewardRepo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)

		payout, err := payoutRepo.GetByIDForUpdate(payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrPayoutNotFound
		}
		if payout.Status != constants.PayoutStatusInTransfer {
			return nil
		}

		now := time.Now()
		payout.Status = constants.PayoutStatusPaid
		payout.StripeTransferID = transferID
		payout.SettledAt = &now
		payout.UpdatedAt = now
		if err := payoutRepo.Update(payout); err != nil {
			return err
		}

		txns, err := rewardRepo.ListByPayoutIDForUpdate(payout.ID)
		if err != nil {
			return err
		}
		if err := rewardRepo.BatchUpdate(collectTxnIDs(txns), map[string]interface{}{
			"status":     constants.RewardStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		}); err != nil {
			return err
		}

		if err := affiliateRepo.AddBalances(payout.AffiliateID, decimal.Zero, decimal.Zero, payout.GrossAmount.Decimal); err != nil {
			return err
		}
		affiliate, err := affiliateRepo.GetByID(payout.AffiliateID)
		if err != nil {
			return err
		}
		if affiliate != nil {
			affiliate.LastPayoutAt = &now
			affiliate.UpdatedAt = now
			if err := affiliateRepo.Update(affiliate); err != nil {
				return err
			}
		}
		return nil
	})
}

// rollbackPayout 划款失败后回滚在途流水与余额
func (s *PayoutService) rollbackPayout(payoutID uint, reason string) error {
	return s.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.affiliateRepo.WithTx(tx)
		rewardRepo := s.rewardRepo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)

		payout, err := payoutRepo.GetByIDForUpdate(payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrPayoutNotFound
		}
		if payout.Status != constants.PayoutStatusInTransfer {
			return nil
		}

		now := time.Now()
		payout.Status = constants.PayoutStatusFailed
		payout.FailureReason = truncateReason(reason)
		payout.UpdatedAt = now
		if err := payoutRepo.Update(payout); err != nil {
			return err
		}

		txns, err := rewardRepo.ListByPayoutIDForUpdate(payout.ID)
		if err != nil {
			return err
		}
		if err := rewardRepo.BatchUpdate(collectTxnIDs(txns), map[string]interface{}{
			"status":     constants.RewardStatusAvailable,
			"payout_id":  nil,
			"updated_at": now,
		}); err != nil {
			return err
		}
		return affiliateRepo.AddBalances(payout.AffiliateID, payout.GrossAmount.Decimal, decimal.Zero, decimal.Zero)
	})
}

// ProcessBulkPayouts 批量打款，单个失败不影响其它
func (s *PayoutService) ProcessBulkPayouts(ctx context.Context, affiliateIDs []uint) *BulkPayoutResult {
	result := &BulkPayoutResult{
		Succeeded: make([]uint, 0, len(affiliateIDs)),
		Failed:    make(map[uint]string),
	}
	seen := make(map[uint]struct{}, len(affiliateIDs))
	for _, id := range affiliateIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.ProcessPayout(ctx, id); err != nil {
			result.Failed[id] = err.Error()
			logger.Warnw("bulk_payout_item_failed", "affiliate_id", id, "error", err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

// PayoutQueue 汇总所有存在可结流水的推广伙伴的结算预览
func (s *PayoutService) PayoutQueue() ([]PayoutQueueItem, error) {
	setting, err := s.settingSvc.GetRewardSetting()
	if err != nil {
		return nil, err
	}

	ids, err := s.affiliateRepo.ListIDsWithAvailableRewards()
	if err != nil {
		return nil, err
	}

	items := make([]PayoutQueueItem, 0, len(ids))
	minimum := decimal.NewFromFloat(setting.PayoutMinimum)
	feePct := decimal.NewFromFloat(setting.TransactionFeePercent)
	for _, id := range ids {
		affiliate, err := s.affiliateRepo.GetByID(id)
		if err != nil {
			return nil, err
		}
		if affiliate == nil {
			continue
		}
		gross, err := s.rewardRepo.SumByAffiliateAndStatus(id, []string{constants.RewardStatusAvailable})
		if err != nil {
			return nil, err
		}
		ytdPaid, err := s.rewardRepo.SumPaidSince(affiliate.UserID, yearStart(time.Now()))
		if err != nil {
			return nil, err
		}
		net := gross.Mul(decimal.NewFromInt(100).Sub(feePct)).Div(decimal.NewFromInt(100)).RoundDown(2)

		item := PayoutQueueItem{
			AffiliateID: affiliate.ID,
			UserID:      affiliate.UserID,
			Slug:        affiliate.Slug,
			GrossAmount: gross,
			FeeAmount:   gross.Sub(net),
			NetAmount:   net,
			YTDEarnings: ytdPaid,
			Eligible:    true,
		}
		switch {
		case affiliate.Status != constants.AffiliateStatusActive:
			item.Eligible = false
			item.BlockedReason = "affiliate not active"
		case affiliate.StripeAccountStatus != constants.StripeAccountStatusActive:
			item.Eligible = false
			item.BlockedReason = "stripe account not ready"
		case gross.LessThan(minimum):
			item.Eligible = false
			item.BlockedReason = "below payout minimum"
		case ytdPaid.Add(gross).GreaterThanOrEqual(decimal.NewFromInt(constants.TaxFormThresholdUSD)) && !affiliate.TaxFormCompleted:
			item.Eligible = false
			item.BlockedReason = "tax form required"
			item.TaxFormRequired = true
		}
		items = append(items, item)
	}
	return items, nil
}

func collectTxnIDs(txns []models.RewardTransaction) []uint {
	ids := make([]uint, 0, len(txns))
	for i := range txns {
		ids = append(ids, txns[i].ID)
	}
	return ids
}

func yearStart(now time.Time) time.Time {
	return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
}

func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return reason[:500]
	}
	return reason
}
