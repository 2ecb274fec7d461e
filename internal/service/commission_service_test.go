package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/repository"
)

type commissionTestEnv struct {
	db            *gorm.DB
	rewardRepo    repository.RewardRepository
	affiliateRepo repository.AffiliateRepository
	referralRepo  repository.ReferralRepository
	userRepo      repository.UserRepository
	webhookRepo   repository.WebhookEventRepository
	settingSvc    *SettingService
	svc           *CommissionService
}

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Tenant{},
		&models.Affiliate{},
		&models.Referral{},
		&models.AffiliateReferral{},
		&models.RewardTransaction{},
		&models.AffiliatePayout{},
		&models.WebhookEvent{},
		&models.Setting{},
	); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func setupCommissionTest(t *testing.T) *commissionTestEnv {
	t.Helper()
	db := openServiceTestDB(t)
	env := &commissionTestEnv{
		db:            db,
		rewardRepo:    repository.NewRewardRepository(db),
		affiliateRepo: repository.NewAffiliateRepository(db),
		referralRepo:  repository.NewReferralRepository(db),
		userRepo:      repository.NewUserRepository(db),
		webhookRepo:   repository.NewWebhookEventRepository(db),
		settingSvc:    NewSettingService(repository.NewSettingRepository(db)),
	}
	env.svc = NewCommissionService(
		env.rewardRepo,
		env.affiliateRepo,
		env.referralRepo,
		env.userRepo,
		env.webhookRepo,
		env.settingSvc,
		nil,
	)
	return env
}

func (env *commissionTestEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := &models.User{
		Email:    username + "@example.com",
		Username: username,
		Status:   constants.UserStatusActive,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("create user %s failed: %v", username, err)
	}
	return user
}

func (env *commissionTestEnv) createActiveAffiliate(t *testing.T, userID uint, slug string) *models.Affiliate {
	t.Helper()
	now := time.Now()
	affiliate := &models.Affiliate{
		UserID:     userID,
		Slug:       slug,
		Status:     constants.AffiliateStatusActive,
		ApprovedAt: &now,
	}
	if err := env.db.Create(affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return affiliate
}

func (env *commissionTestEnv) linkAffiliateReferral(t *testing.T, affiliateID, refereeID uint) *models.AffiliateReferral {
	t.Helper()
	referral := &models.AffiliateReferral{
		AffiliateID: affiliateID,
		RefereeID:   refereeID,
		Status:      constants.AffiliateReferralStatusPending,
	}
	if err := env.db.Create(referral).Error; err != nil {
		t.Fatalf("create affiliate referral failed: %v", err)
	}
	return referral
}

func TestProcessCommissionAffiliatePath(t *testing.T) {
	env := setupCommissionTest(t)
	partner := env.createUser(t, "partner")
	referee := env.createUser(t, "referee")
	affiliate := env.createActiveAffiliate(t, partner.ID, "partner")
	customRate := models.NewMoneyFromDecimal(decimal.NewFromInt(20))
	if err := env.db.Model(affiliate).Update("custom_commission_rate", customRate).Error; err != nil {
		t.Fatalf("set custom rate failed: %v", err)
	}
	env.linkAffiliateReferral(t, affiliate.ID, referee.ID)

	outcome, err := env.svc.ProcessCommission(CommissionInput{
		RefereeID:       referee.ID,
		Amount:          decimal.RequireFromString("497.00"),
		SourcePaymentID: "in_1001",
		BillingReason:   "subscription_create",
	})
	if err != nil {
		t.Fatalf("process commission failed: %v", err)
	}
	if outcome.Result != CommissionResultCreated {
		t.Fatalf("expected created, got %s (%s)", outcome.Result, outcome.Reason)
	}
	txn := outcome.Transaction
	if got := txn.Amount.Decimal.StringFixed(2); got != "99.40" {
		t.Fatalf("expected amount 99.40, got %s", got)
	}
	if txn.Status != constants.RewardStatusPending {
		t.Fatalf("expected pending with hold period, got %s", txn.Status)
	}
	if txn.HoldEndsAt == nil {
		t.Fatalf("expected hold end time to be set")
	}

	var reloaded models.Affiliate
	if err := env.db.First(&reloaded, affiliate.ID).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if got := reloaded.TotalEarnings.Decimal.StringFixed(2); got != "99.40" {
		t.Fatalf("expected total earnings 99.40, got %s", got)
	}
	if !reloaded.Balance.Decimal.IsZero() {
		t.Fatalf("pending commission must not credit balance, got %s", reloaded.Balance.Decimal)
	}

	var conv models.AffiliateReferral
	if err := env.db.Where("referee_id = ?", referee.ID).First(&conv).Error; err != nil {
		t.Fatalf("reload affiliate referral failed: %v", err)
	}
	if conv.Status != constants.AffiliateReferralStatusConverted {
		t.Fatalf("expected converted attribution, got %s", conv.Status)
	}
	if conv.ExpiresAt == nil {
		t.Fatalf("expected commission window expiry to be set")
	}
	if got := conv.CommissionAmount.Decimal.StringFixed(2); got != "99.40" {
		t.Fatalf("expected conversion commission 99.40, got %s", got)
	}
}

func TestProcessCommissionDuplicateSource(t *testing.T) {
	env := setupCommissionTest(t)
	partner := env.createUser(t, "partner")
	referee := env.createUser(t, "referee")
	affiliate := env.createActiveAffiliate(t, partner.ID, "partner")
	env.linkAffiliateReferral(t, affiliate.ID, referee.ID)

	input := CommissionInput{
		RefereeID:       referee.ID,
		Amount:          decimal.NewFromInt(100),
		SourcePaymentID: "in_2001",
	}
	first, err := env.svc.ProcessCommission(input)
	if err != nil {
		t.Fatalf("first commission failed: %v", err)
	}
	if first.Result != CommissionResultCreated {
		t.Fatalf("expected created, got %s", first.Result)
	}

	second, err := env.svc.ProcessCommission(input)
	if err != nil {
		t.Fatalf("second commission failed: %v", err)
	}
	if second.Result != CommissionResultDuplicate {
		t.Fatalf("expected duplicate, got %s", second.Result)
	}

	var count int64
	env.db.Model(&models.RewardTransaction{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 transaction, got %d", count)
	}
}

func TestProcessCommissionRenewalExcluded(t *testing.T) {
	env := setupCommissionTest(t)
	referee := env.createUser(t, "referee")

	outcome, err := env.svc.ProcessCommission(CommissionInput{
		RefereeID:       referee.ID,
		Amount:          decimal.NewFromInt(49),
		SourcePaymentID: "in_3001",
		BillingReason:   "subscription_cycle",
	})
	if err != nil {
		t.Fatalf("process commission failed: %v", err)
	}
	if outcome.Result != CommissionResultSkipped {
		t.Fatalf("expected skipped, got %s", outcome.Result)
	}

	var count int64
	env.db.Model(&models.RewardTransaction{}).Count(&count)
	if count != 0 {
		t.Fatalf("renewal must not produce transactions, got %d", count)
	}
}

func TestProcessCommissionSelfReferralSkipped(t *testing.T) {
	env := setupCommissionTest(t)
	user := env.createUser(t, "loner")
	code := "LONER"
	if err := env.db.Create(&models.Referral{Code: code, ReferrerID: user.ID, Status: constants.ReferralStatusPending}).Error; err != nil {
		t.Fatalf("create referral failed: %v", err)
	}
	if err := env.db.Model(user).Update("referral_code_used", code).Error; err != nil {
		t.Fatalf("bind referral code failed: %v", err)
	}

	outcome, err := env.svc.ProcessCommission(CommissionInput{
		RefereeID:       user.ID,
		Amount:          decimal.NewFromInt(100),
		SourcePaymentID: "in_4001",
	})
	if err != nil {
		t.Fatalf("process commission failed: %v", err)
	}
	if outcome.Result != CommissionResultSkipped || outcome.Reason != "self referral" {
		t.Fatalf("expected self referral skip, got %s (%s)", outcome.Result, outcome.Reason)
	}
}

func TestProcessCommissionRefundArrivedFirst(t *testing.T) {
	env := setupCommissionTest(t)
	partner := env.createUser(t, "partner")
	referee := env.createUser(t, "referee")
	affiliate := env.createActiveAffiliate(t, partner.ID, "partner")
	env.linkAffiliateReferral(t, affiliate.ID, referee.ID)

	refund := &models.WebhookEvent{
		EventID:         "evt_refund_1",
		EventType:       constants.StripeEventChargeRefunded,
		Status:          constants.WebhookEventStatusUnmatched,
		SourcePaymentID: "in_5001",
	}
	if err := env.db.Create(refund).Error; err != nil {
		t.Fatalf("create unmatched refund failed: %v", err)
	}

	outcome, err := env.svc.ProcessCommission(CommissionInput{
		RefereeID:       referee.ID,
		Amount:          decimal.NewFromInt(200),
		SourcePaymentID: "in_5001",
	})
	if err != nil {
		t.Fatalf("process commission failed: %v", err)
	}
	if outcome.Result != CommissionResultSkipped {
		t.Fatalf("expected skipped, got %s", outcome.Result)
	}

	var txn models.RewardTransaction
	if err := env.db.Where("source_payment_id = ?", "in_5001").First(&txn).Error; err != nil {
		t.Fatalf("expected refunded transaction on record: %v", err)
	}
	if txn.Status != constants.RewardStatusRefunded {
		t.Fatalf("expected refunded status, got %s", txn.Status)
	}

	var event models.WebhookEvent
	if err := env.db.First(&event, refund.ID).Error; err != nil {
		t.Fatalf("reload webhook event failed: %v", err)
	}
	if event.Status != constants.WebhookEventStatusProcessed {
		t.Fatalf("expected refund event marked processed, got %s", event.Status)
	}

	var reloaded models.Affiliate
	if err := env.db.First(&reloaded, affiliate.ID).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if !reloaded.TotalEarnings.Decimal.IsZero() || !reloaded.Balance.Decimal.IsZero() {
		t.Fatalf("refunded-first commission must not touch balances")
	}
}

func TestClearPendingHoldsReleasesDue(t *testing.T) {
	env := setupCommissionTest(t)
	partner := env.createUser(t, "partner")
	referee := env.createUser(t, "referee")
	affiliate := env.createActiveAffiliate(t, partner.ID, "partner")
	env.linkAffiliateReferral(t, affiliate.ID, referee.ID)

	outcome, err := env.svc.ProcessCommission(CommissionInput{
		RefereeID:       referee.ID,
		Amount:          decimal.NewFromInt(100),
		SourcePaymentID: "in_6001",
	})
	if err != nil || outcome.Result != CommissionResultCreated {
		t.Fatalf("seed commission failed: %v (%v)", err, outcome)
	}

	past := time.Now().Add(-time.Hour)
	if err := env.db.Model(&models.RewardTransaction{}).
		Where("id = ?", outcome.Transaction.ID).
		Update("hold_ends_at", past).Error; err != nil {
		t.Fatalf("age hold failed: %v", err)
	}

	released, err := env.svc.ClearPendingHolds()
	if err != nil {
		t.Fatalf("clear pending holds failed: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released, got %d", released)
	}

	var txn models.RewardTransaction
	if err := env.db.First(&txn, outcome.Transaction.ID).Error; err != nil {
		t.Fatalf("reload transaction failed: %v", err)
	}
	if txn.Status != constants.RewardStatusAvailable {
		t.Fatalf("expected available after release, got %s", txn.Status)
	}
	if txn.ReleasedAt == nil {
		t.Fatalf("expected release timestamp")
	}

	var reloaded models.Affiliate
	if err := env.db.First(&reloaded, affiliate.ID).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if got := reloaded.Balance.Decimal.StringFixed(2); got != "10.00" {
		t.Fatalf("expected balance 10.00 after release, got %s", got)
	}

	again, err := env.svc.ClearPendingHolds()
	if err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected no further releases, got %d", again)
	}
}

func TestReverseBySourcePayment(t *testing.T) {
	env := setupCommissionTest(t)
	partner := env.createUser(t, "partner")
	referee := env.createUser(t, "referee")
	affiliate := env.createActiveAffiliate(t, partner.ID, "partner")
	env.linkAffiliateReferral(t, affiliate.ID, referee.ID)

	outcome, err := env.svc.ProcessCommission(CommissionInput{
		RefereeID:       referee.ID,
		Amount:          decimal.NewFromInt(100),
		SourcePaymentID: "in_7001",
	})
	if err != nil || outcome.Result != CommissionResultCreated {
		t.Fatalf("seed commission failed: %v (%v)", err, outcome)
	}

	// 先释放冻结，再冲销，覆盖可结流水回收余额的分支
	past := time.Now().Add(-time.Hour)
	env.db.Model(&models.RewardTransaction{}).
		Where("id = ?", outcome.Transaction.ID).
		Update("hold_ends_at", past)
	if _, err := env.svc.ClearPendingHolds(); err != nil {
		t.Fatalf("clear pending holds failed: %v", err)
	}

	reversed, err := env.svc.ReverseBySourcePayment("in_7001")
	if err != nil {
		t.Fatalf("reverse failed: %v", err)
	}
	if reversed != 1 {
		t.Fatalf("expected 1 reversed, got %d", reversed)
	}

	var txn models.RewardTransaction
	if err := env.db.First(&txn, outcome.Transaction.ID).Error; err != nil {
		t.Fatalf("reload transaction failed: %v", err)
	}
	if txn.Status != constants.RewardStatusRefunded {
		t.Fatalf("expected refunded, got %s", txn.Status)
	}

	var reloaded models.Affiliate
	if err := env.db.First(&reloaded, affiliate.ID).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if !reloaded.Balance.Decimal.IsZero() {
		t.Fatalf("expected balance back to zero, got %s", reloaded.Balance.Decimal)
	}
	if !reloaded.TotalEarnings.Decimal.IsZero() {
		t.Fatalf("expected earnings back to zero, got %s", reloaded.TotalEarnings.Decimal)
	}

	again, err := env.svc.ReverseBySourcePayment("in_7001")
	if err != nil {
		t.Fatalf("second reverse failed: %v", err)
	}
	if again != 0 {
		t.Fatalf("refunded transactions must not re-reverse, got %d", again)
	}
}

func TestReverseSkipsPaidTransactions(t *testing.T) {
	env := setupCommissionTest(t)
	partner := env.createUser(t, "partner")
	affiliate := env.createActiveAffiliate(t, partner.ID, "partner")

	now := time.Now()
	txn := &models.RewardTransaction{
		ReferrerID:      partner.ID,
		AffiliateID:     &affiliate.ID,
		Type:            constants.RewardTypeCommission,
		Status:          constants.RewardStatusPaid,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		SourcePaymentID: "in_8001",
		PaidAt:          &now,
	}
	if err := env.db.Create(txn).Error; err != nil {
		t.Fatalf("create paid transaction failed: %v", err)
	}

	reversed, err := env.svc.ReverseBySourcePayment("in_8001")
	if err != nil {
		t.Fatalf("reverse failed: %v", err)
	}
	if reversed != 0 {
		t.Fatalf("paid transactions must not be reversed, got %d", reversed)
	}
}
