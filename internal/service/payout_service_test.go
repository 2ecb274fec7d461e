package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/payment/stripe"
	"github.com/orbisvoice-next/internal/repository"
)

// stubTransferClient 桩划款通道，按序返回预设结果
type stubTransferClient struct {
	calls  []stripe.TransferInput
	result *stripe.TransferResult
	err    error
}

func (c *stubTransferClient) CreateTransfer(_ context.Context, input stripe.TransferInput) (*stripe.TransferResult, error) {
	c.calls = append(c.calls, input)
	if c.err != nil {
		return nil, c.err
	}
	if c.result != nil {
		return c.result, nil
	}
	return &stripe.TransferResult{TransferID: fmt.Sprintf("tr_stub_%d", len(c.calls))}, nil
}

type payoutTestEnv struct {
	db            *gorm.DB
	affiliateRepo repository.AffiliateRepository
	rewardRepo    repository.RewardRepository
	payoutRepo    repository.PayoutRepository
	settingSvc    *SettingService
	transfers     *stubTransferClient
	svc           *PayoutService
}

func setupPayoutTest(t *testing.T) *payoutTestEnv {
	t.Helper()
	db := openServiceTestDB(t)
	env := &payoutTestEnv{
		db:            db,
		affiliateRepo: repository.NewAffiliateRepository(db),
		rewardRepo:    repository.NewRewardRepository(db),
		payoutRepo:    repository.NewPayoutRepository(db),
		settingSvc:    NewSettingService(repository.NewSettingRepository(db)),
		transfers:     &stubTransferClient{},
	}
	env.svc = NewPayoutService(
		env.affiliateRepo,
		env.rewardRepo,
		env.payoutRepo,
		env.settingSvc,
		env.transfers,
		nil,
	)
	return env
}

// seedPayableAffiliate 建立一个可打款的推广伙伴及其可结流水
func (env *payoutTestEnv) seedPayableAffiliate(t *testing.T, slug string, amounts ...string) *models.Affiliate {
	t.Helper()
	user := &models.User{
		Email:    slug + "@example.com",
		Username: slug,
		Status:   constants.UserStatusActive,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	now := time.Now()
	affiliate := &models.Affiliate{
		UserID:              user.ID,
		Slug:                slug,
		Status:              constants.AffiliateStatusActive,
		StripeAccountID:     "acct_" + slug,
		StripeAccountStatus: constants.StripeAccountStatusActive,
		ApprovedAt:          &now,
	}
	if err := env.db.Create(affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}

	total := decimal.Zero
	for i, raw := range amounts {
		amount := decimal.RequireFromString(raw)
		txn := &models.RewardTransaction{
			ReferrerID:      user.ID,
			AffiliateID:     &affiliate.ID,
			Type:            constants.RewardTypeCommission,
			Status:          constants.RewardStatusAvailable,
			Amount:          models.NewMoneyFromDecimal(amount),
			SourcePaymentID: fmt.Sprintf("in_%s_%d", slug, i),
			ReleasedAt:      &now,
		}
		if err := env.db.Create(txn).Error; err != nil {
			t.Fatalf("create reward transaction failed: %v", err)
		}
		total = total.Add(amount)
	}
	if !total.IsZero() {
		if err := env.db.Model(affiliate).Updates(map[string]interface{}{
			"balance":        models.NewMoneyFromDecimal(total),
			"total_earnings": models.NewMoneyFromDecimal(total),
		}).Error; err != nil {
			t.Fatalf("seed balances failed: %v", err)
		}
	}
	return affiliate
}

func TestProcessPayoutSuccess(t *testing.T) {
	env := setupPayoutTest(t)
	affiliate := env.seedPayableAffiliate(t, "maker", "100.00", "50.00")

	payout, err := env.svc.ProcessPayout(context.Background(), affiliate.ID)
	if err != nil {
		t.Fatalf("process payout failed: %v", err)
	}
	if payout.Status != constants.PayoutStatusPaid {
		t.Fatalf("expected paid, got %s", payout.Status)
	}
	if got := payout.GrossAmount.Decimal.StringFixed(2); got != "150.00" {
		t.Fatalf("expected gross 150.00, got %s", got)
	}
	// 默认手续费 3.4%：150 × 0.966 = 144.90
	if got := payout.NetAmount.Decimal.StringFixed(2); got != "144.90" {
		t.Fatalf("expected net 144.90, got %s", got)
	}
	if got := payout.FeeAmount.Decimal.StringFixed(2); got != "5.10" {
		t.Fatalf("expected fee 5.10, got %s", got)
	}
	if payout.StripeTransferID == "" {
		t.Fatalf("expected transfer id recorded")
	}
	if payout.TransactionCount != 2 {
		t.Fatalf("expected 2 settled transactions, got %d", payout.TransactionCount)
	}

	if len(env.transfers.calls) != 1 {
		t.Fatalf("expected 1 transfer call, got %d", len(env.transfers.calls))
	}
	call := env.transfers.calls[0]
	if call.IdempotencyKey != fmt.Sprintf("payout-%d", payout.ID) {
		t.Fatalf("unexpected idempotency key %q", call.IdempotencyKey)
	}
	if call.Destination != affiliate.StripeAccountID {
		t.Fatalf("unexpected destination %q", call.Destination)
	}

	var reloaded models.Affiliate
	if err := env.db.First(&reloaded, affiliate.ID).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if !reloaded.Balance.Decimal.IsZero() {
		t.Fatalf("expected balance drained, got %s", reloaded.Balance.Decimal)
	}
	if got := reloaded.TotalPaid.Decimal.StringFixed(2); got != "150.00" {
		t.Fatalf("expected total paid 150.00, got %s", got)
	}
	if reloaded.LastPayoutAt == nil {
		t.Fatalf("expected last payout timestamp")
	}

	var pending int64
	env.db.Model(&models.RewardTransaction{}).
		Where("status <> ?", constants.RewardStatusPaid).
		Count(&pending)
	if pending != 0 {
		t.Fatalf("expected all transactions paid, %d left", pending)
	}
}

func TestProcessPayoutBelowMinimum(t *testing.T) {
	env := setupPayoutTest(t)
	affiliate := env.seedPayableAffiliate(t, "small", "42.00")

	_, err := env.svc.ProcessPayout(context.Background(), affiliate.ID)
	if !errors.Is(err, ErrPayoutBelowMinimum) {
		t.Fatalf("expected below-minimum error, got %v", err)
	}
	if len(env.transfers.calls) != 0 {
		t.Fatalf("no transfer should be attempted")
	}
}

func TestProcessPayoutNoAvailableFunds(t *testing.T) {
	env := setupPayoutTest(t)
	affiliate := env.seedPayableAffiliate(t, "empty")

	_, err := env.svc.ProcessPayout(context.Background(), affiliate.ID)
	if !errors.Is(err, ErrNoAvailableFunds) {
		t.Fatalf("expected no-funds error, got %v", err)
	}
	if len(env.transfers.calls) != 0 {
		t.Fatalf("no transfer should be attempted")
	}

	var payoutCount int64
	if err := env.db.Model(&models.AffiliatePayout{}).Count(&payoutCount).Error; err != nil {
		t.Fatalf("count payouts failed: %v", err)
	}
	if payoutCount != 0 {
		t.Fatalf("no payout row should be created, got %d", payoutCount)
	}
}

func TestProcessPayoutAccountNotReady(t *testing.T) {
	env := setupPayoutTest(t)
	affiliate := env.seedPayableAffiliate(t, "unlinked", "200.00")
	if err := env.db.Model(affiliate).Updates(map[string]interface{}{
		"stripe_account_id":     "",
		"stripe_account_status": constants.StripeAccountStatusPending,
	}).Error; err != nil {
		t.Fatalf("unlink account failed: %v", err)
	}

	_, err := env.svc.ProcessPayout(context.Background(), affiliate.ID)
	if !errors.Is(err, ErrPayoutAccountNotReady) {
		t.Fatalf("expected account-not-ready error, got %v", err)
	}
}

func TestProcessPayoutTaxFormGate(t *testing.T) {
	env := setupPayoutTest(t)
	affiliate := env.seedPayableAffiliate(t, "earner", "650.00")

	_, err := env.svc.ProcessPayout(context.Background(), affiliate.ID)
	if !errors.Is(err, ErrPayoutTaxFormRequired) {
		t.Fatalf("expected tax-form error, got %v", err)
	}

	if err := env.db.Model(affiliate).Update("tax_form_completed", true).Error; err != nil {
		t.Fatalf("complete tax form failed: %v", err)
	}
	payout, err := env.svc.ProcessPayout(context.Background(), affiliate.ID)
	if err != nil {
		t.Fatalf("payout after tax form failed: %v", err)
	}
	if payout.Status != constants.PayoutStatusPaid {
		t.Fatalf("expected paid, got %s", payout.Status)
	}
}

func TestProcessPayoutTransferFailureRollsBack(t *testing.T) {
	env := setupPayoutTest(t)
	affiliate := env.seedPayableAffiliate(t, "unlucky", "120.00")
	env.transfers.err = errors.New("stripe unavailable")

	_, err := env.svc.ProcessPayout(context.Background(), affiliate.ID)
	if err == nil {
		t.Fatalf("expected transfer failure")
	}

	var payout models.AffiliatePayout
	if err := env.db.Where("affiliate_id = ?", affiliate.ID).First(&payout).Error; err != nil {
		t.Fatalf("reload payout failed: %v", err)
	}
	if payout.Status != constants.PayoutStatusFailed {
		t.Fatalf("expected failed payout, got %s", payout.Status)
	}
	if payout.FailureReason == "" {
		t.Fatalf("expected failure reason recorded")
	}

	var txn models.RewardTransaction
	if err := env.db.Where("affiliate_id = ?", affiliate.ID).First(&txn).Error; err != nil {
		t.Fatalf("reload transaction failed: %v", err)
	}
	if txn.Status != constants.RewardStatusAvailable {
		t.Fatalf("expected transaction back to available, got %s", txn.Status)
	}
	if txn.PayoutID != nil {
		t.Fatalf("expected payout link cleared")
	}

	var reloaded models.Affiliate
	if err := env.db.First(&reloaded, affiliate.ID).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if got := reloaded.Balance.Decimal.StringFixed(2); got != "120.00" {
		t.Fatalf("expected balance restored to 120.00, got %s", got)
	}
	if !reloaded.TotalPaid.Decimal.IsZero() {
		t.Fatalf("failed payout must not count as paid")
	}
}

func TestProcessPayoutInProgressGate(t *testing.T) {
	env := setupPayoutTest(t)
	affiliate := env.seedPayableAffiliate(t, "busy", "300.00")
	existing := &models.AffiliatePayout{
		AffiliateID: affiliate.ID,
		GrossAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		NetAmount:   models.NewMoneyFromDecimal(decimal.NewFromInt(96)),
		Status:      constants.PayoutStatusInTransfer,
		Method:      constants.PayoutMethodStripe,
	}
	if err := env.db.Create(existing).Error; err != nil {
		t.Fatalf("create in-transfer payout failed: %v", err)
	}

	_, err := env.svc.ProcessPayout(context.Background(), affiliate.ID)
	if !errors.Is(err, ErrPayoutInProgress) {
		t.Fatalf("expected in-progress error, got %v", err)
	}
}

func TestProcessBulkPayoutsIsolatesFailures(t *testing.T) {
	env := setupPayoutTest(t)
	good := env.seedPayableAffiliate(t, "good", "200.00")
	short := env.seedPayableAffiliate(t, "short", "10.00")

	result := env.svc.ProcessBulkPayouts(context.Background(), []uint{good.ID, short.ID, good.ID, 0, 9999})
	if len(result.Succeeded) != 1 || result.Succeeded[0] != good.ID {
		t.Fatalf("expected only %d to succeed, got %v", good.ID, result.Succeeded)
	}
	if _, ok := result.Failed[short.ID]; !ok {
		t.Fatalf("expected %d in failed map", short.ID)
	}
	if _, ok := result.Failed[9999]; !ok {
		t.Fatalf("expected unknown affiliate in failed map")
	}
	if len(env.transfers.calls) != 1 {
		t.Fatalf("expected exactly 1 transfer, got %d", len(env.transfers.calls))
	}
}

func TestPayoutQueueFlagsBlockers(t *testing.T) {
	env := setupPayoutTest(t)
	ready := env.seedPayableAffiliate(t, "ready", "180.00")
	below := env.seedPayableAffiliate(t, "below", "20.00")

	items, err := env.svc.PayoutQueue()
	if err != nil {
		t.Fatalf("payout queue failed: %v", err)
	}
	byID := make(map[uint]PayoutQueueItem, len(items))
	for _, item := range items {
		byID[item.AffiliateID] = item
	}

	readyItem, ok := byID[ready.ID]
	if !ok {
		t.Fatalf("expected ready affiliate in queue")
	}
	if !readyItem.Eligible {
		t.Fatalf("expected eligible, blocked by %q", readyItem.BlockedReason)
	}
	if got := readyItem.NetAmount.StringFixed(2); got != "173.88" {
		t.Fatalf("expected net 173.88, got %s", got)
	}

	belowItem, ok := byID[below.ID]
	if !ok {
		t.Fatalf("expected below-minimum affiliate in queue")
	}
	if belowItem.Eligible || belowItem.BlockedReason == "" {
		t.Fatalf("expected blocked queue entry, got %+v", belowItem)
	}
}
