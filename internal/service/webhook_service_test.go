package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/payment/stripe"
	"github.com/orbisvoice-next/internal/repository"
)

type webhookTestEnv struct {
	db  *gorm.DB
	svc *WebhookService
}

// setupWebhookTest 不配置签名密钥，走降级解析路径直测路由逻辑
func setupWebhookTest(t *testing.T) *webhookTestEnv {
	t.Helper()
	db := openServiceTestDB(t)
	rewardRepo := repository.NewRewardRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	userRepo := repository.NewUserRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)
	settingSvc := NewSettingService(repository.NewSettingRepository(db))

	commissionSvc := NewCommissionService(rewardRepo, affiliateRepo, referralRepo, userRepo, webhookRepo, settingSvc, nil)
	affiliateSvc := NewAffiliateService(affiliateRepo, rewardRepo, userRepo, settingSvc, nil)
	svc := NewWebhookService(webhookRepo, tenantRepo, userRepo, commissionSvc, affiliateSvc, nil, nil)
	return &webhookTestEnv{db: db, svc: svc}
}

// seedAttributedTenant 建立 推广伙伴 → 被推荐用户 → 付费租户 的完整链路
func (env *webhookTestEnv) seedAttributedTenant(t *testing.T, customerID string) (*models.Affiliate, *models.User) {
	t.Helper()
	partner := &models.User{Email: "partner@example.com", Username: "partner", Status: constants.UserStatusActive}
	if err := env.db.Create(partner).Error; err != nil {
		t.Fatalf("create partner failed: %v", err)
	}
	referee := &models.User{Email: "referee@example.com", Username: "referee", Status: constants.UserStatusActive}
	if err := env.db.Create(referee).Error; err != nil {
		t.Fatalf("create referee failed: %v", err)
	}
	now := time.Now()
	affiliate := &models.Affiliate{
		UserID:     partner.ID,
		Slug:       "partner",
		Status:     constants.AffiliateStatusActive,
		ApprovedAt: &now,
	}
	if err := env.db.Create(affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	if err := env.db.Create(&models.AffiliateReferral{
		AffiliateID: affiliate.ID,
		RefereeID:   referee.ID,
		Status:      constants.AffiliateReferralStatusPending,
	}).Error; err != nil {
		t.Fatalf("create attribution failed: %v", err)
	}
	tenant := &models.Tenant{
		Name:             "referee",
		OwnerUserID:      referee.ID,
		StripeCustomerID: &customerID,
	}
	if err := env.db.Create(tenant).Error; err != nil {
		t.Fatalf("create tenant failed: %v", err)
	}
	if err := env.db.Model(referee).Update("tenant_id", tenant.ID).Error; err != nil {
		t.Fatalf("bind tenant failed: %v", err)
	}
	return affiliate, referee
}

func invoicePaidBody(eventID, invoiceID, customerID, billingReason string, amountCents int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "invoice.paid",
		"data": {"object": {
			"object": "invoice",
			"id": %q,
			"customer": %q,
			"billing_reason": %q,
			"amount_paid": %d,
			"currency": "usd"
		}}
	}`, eventID, invoiceID, customerID, billingReason, amountCents))
}

func chargeRefundedBody(eventID, invoiceID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "charge.refunded",
		"data": {"object": {
			"object": "charge",
			"id": "ch_1",
			"invoice": %q,
			"amount_refunded": 49700,
			"currency": "usd",
			"refunded": true
		}}
	}`, eventID, invoiceID))
}

func TestHandleStripeWebhookInvoicePaid(t *testing.T) {
	env := setupWebhookTest(t)
	affiliate, _ := env.seedAttributedTenant(t, "cus_100")

	result, err := env.svc.HandleStripeWebhook(context.Background(), nil,
		invoicePaidBody("evt_1", "in_100", "cus_100", "subscription_create", 49700))
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if result.Status != constants.WebhookEventStatusProcessed {
		t.Fatalf("expected processed, got %s (%s)", result.Status, result.Detail)
	}

	var txn models.RewardTransaction
	if err := env.db.Where("source_payment_id = ?", "in_100").First(&txn).Error; err != nil {
		t.Fatalf("expected commission transaction: %v", err)
	}
	// 默认 LOW 档 10%：497 × 10% = 49.70
	if got := txn.Amount.Decimal.StringFixed(2); got != "49.70" {
		t.Fatalf("expected 49.70, got %s", got)
	}
	if txn.AffiliateID == nil || *txn.AffiliateID != affiliate.ID {
		t.Fatalf("expected transaction attributed to affiliate %d", affiliate.ID)
	}

	var record models.WebhookEvent
	if err := env.db.Where("event_id = ?", "evt_1").First(&record).Error; err != nil {
		t.Fatalf("expected event record: %v", err)
	}
	if record.Status != constants.WebhookEventStatusProcessed {
		t.Fatalf("expected processed event record, got %s", record.Status)
	}
	if record.SourcePaymentID != "in_100" {
		t.Fatalf("expected source payment recorded, got %q", record.SourcePaymentID)
	}
}

func TestHandleStripeWebhookDuplicateEvent(t *testing.T) {
	env := setupWebhookTest(t)
	env.seedAttributedTenant(t, "cus_200")
	body := invoicePaidBody("evt_dup", "in_200", "cus_200", "subscription_create", 10000)

	if _, err := env.svc.HandleStripeWebhook(context.Background(), nil, body); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	second, err := env.svc.HandleStripeWebhook(context.Background(), nil, body)
	if err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}
	if second.Status != constants.WebhookEventStatusSkipped {
		t.Fatalf("expected duplicate skipped, got %s", second.Status)
	}

	var count int64
	env.db.Model(&models.RewardTransaction{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 transaction after replayed delivery, got %d", count)
	}
}

func TestHandleStripeWebhookRenewalSkipped(t *testing.T) {
	env := setupWebhookTest(t)
	env.seedAttributedTenant(t, "cus_300")

	result, err := env.svc.HandleStripeWebhook(context.Background(), nil,
		invoicePaidBody("evt_renewal", "in_300", "cus_300", "subscription_cycle", 10000))
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if result.Status != constants.WebhookEventStatusSkipped {
		t.Fatalf("expected skipped, got %s", result.Status)
	}
}

func TestHandleStripeWebhookRefundReversesCommission(t *testing.T) {
	env := setupWebhookTest(t)
	affiliate, _ := env.seedAttributedTenant(t, "cus_400")

	if _, err := env.svc.HandleStripeWebhook(context.Background(), nil,
		invoicePaidBody("evt_pay", "in_400", "cus_400", "subscription_create", 49700)); err != nil {
		t.Fatalf("pay event failed: %v", err)
	}
	result, err := env.svc.HandleStripeWebhook(context.Background(), nil, chargeRefundedBody("evt_refund", "in_400"))
	if err != nil {
		t.Fatalf("refund event failed: %v", err)
	}
	if result.Status != constants.WebhookEventStatusProcessed {
		t.Fatalf("expected processed refund, got %s (%s)", result.Status, result.Detail)
	}

	var txn models.RewardTransaction
	if err := env.db.Where("source_payment_id = ?", "in_400").First(&txn).Error; err != nil {
		t.Fatalf("reload transaction failed: %v", err)
	}
	if txn.Status != constants.RewardStatusRefunded {
		t.Fatalf("expected refunded transaction, got %s", txn.Status)
	}

	var reloaded models.Affiliate
	env.db.First(&reloaded, affiliate.ID)
	if !reloaded.TotalEarnings.Decimal.IsZero() {
		t.Fatalf("expected earnings clawed back, got %s", reloaded.TotalEarnings.Decimal)
	}
}

func TestHandleStripeWebhookRefundBeforeCommissionUnmatched(t *testing.T) {
	env := setupWebhookTest(t)
	env.seedAttributedTenant(t, "cus_500")

	result, err := env.svc.HandleStripeWebhook(context.Background(), nil, chargeRefundedBody("evt_early", "in_500"))
	if err != nil {
		t.Fatalf("refund event failed: %v", err)
	}
	if result.Status != constants.WebhookEventStatusUnmatched {
		t.Fatalf("expected unmatched, got %s", result.Status)
	}

	// 佣金事件后到：对账掉未匹配退款，直接落为已冲销流水
	pay, err := env.svc.HandleStripeWebhook(context.Background(), nil,
		invoicePaidBody("evt_late", "in_500", "cus_500", "subscription_create", 49700))
	if err != nil {
		t.Fatalf("late pay event failed: %v", err)
	}
	if pay.Status != constants.WebhookEventStatusSkipped {
		t.Fatalf("expected skipped, got %s", pay.Status)
	}

	var txn models.RewardTransaction
	if err := env.db.Where("source_payment_id = ?", "in_500").First(&txn).Error; err != nil {
		t.Fatalf("expected reconciled transaction: %v", err)
	}
	if txn.Status != constants.RewardStatusRefunded {
		t.Fatalf("expected refunded, got %s", txn.Status)
	}

	var refundEvent models.WebhookEvent
	env.db.Where("event_id = ?", "evt_early").First(&refundEvent)
	if refundEvent.Status != constants.WebhookEventStatusProcessed {
		t.Fatalf("expected refund event reconciled, got %s", refundEvent.Status)
	}
}

func checkoutCompletedBody(eventID, sessionID, customerID, tier string, amountCents int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"object": "checkout.session",
			"id": %q,
			"customer": %q,
			"mode": "payment",
			"payment_status": "paid",
			"payment_intent": "pi_900",
			"amount_total": %d,
			"currency": "usd",
			"metadata": {"tier": %q}
		}}
	}`, eventID, sessionID, customerID, amountCents, tier))
}

func TestHandleStripeWebhookCheckoutUpgradesTier(t *testing.T) {
	env := setupWebhookTest(t)
	affiliate, _ := env.seedAttributedTenant(t, "cus_700")

	result, err := env.svc.HandleStripeWebhook(context.Background(), nil,
		checkoutCompletedBody("evt_co_1", "cs_700", "cus_700", "professional", 49700))
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if result.Status != constants.WebhookEventStatusProcessed {
		t.Fatalf("expected processed, got %s (%s)", result.Status, result.Detail)
	}

	var tenant models.Tenant
	if err := env.db.Where("stripe_customer_id = ?", "cus_700").First(&tenant).Error; err != nil {
		t.Fatalf("load tenant failed: %v", err)
	}
	if tenant.SubscriptionTier != constants.SubscriptionTierPro {
		t.Fatalf("expected PRO tier, got %s", tenant.SubscriptionTier)
	}
	if tenant.SubscriptionStatus != constants.TenantSubscriptionActive {
		t.Fatalf("expected active subscription, got %s", tenant.SubscriptionStatus)
	}
	if tenant.UsageMinutesLimit != constants.UsageMinutesPro {
		t.Fatalf("expected usage limit %d, got %d", constants.UsageMinutesPro, tenant.UsageMinutesLimit)
	}
	if tenant.LifetimeDeal {
		t.Fatalf("tiered checkout should not mark lifetime deal")
	}

	var txn models.RewardTransaction
	if err := env.db.Where("source_payment_id = ?", "pi_900").First(&txn).Error; err != nil {
		t.Fatalf("load commission failed: %v", err)
	}
	if txn.AffiliateID == nil || *txn.AffiliateID != affiliate.ID {
		t.Fatalf("commission should credit the attributed affiliate")
	}
	if txn.Amount.Decimal.StringFixed(2) != "49.70" {
		t.Fatalf("expected 49.70 commission, got %s", txn.Amount.Decimal.StringFixed(2))
	}
}

func TestHandleStripeWebhookCheckoutLifetimeDeal(t *testing.T) {
	env := setupWebhookTest(t)
	env.seedAttributedTenant(t, "cus_701")

	result, err := env.svc.HandleStripeWebhook(context.Background(), nil,
		checkoutCompletedBody("evt_co_2", "cs_701", "cus_701", "ltd", 29700))
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if result.Status != constants.WebhookEventStatusProcessed {
		t.Fatalf("expected processed, got %s (%s)", result.Status, result.Detail)
	}

	var tenant models.Tenant
	if err := env.db.Where("stripe_customer_id = ?", "cus_701").First(&tenant).Error; err != nil {
		t.Fatalf("load tenant failed: %v", err)
	}
	if !tenant.LifetimeDeal {
		t.Fatalf("expected lifetime deal flag")
	}
	if tenant.SubscriptionTier != constants.SubscriptionTierLifetime {
		t.Fatalf("expected LIFETIME tier, got %s", tenant.SubscriptionTier)
	}
	if tenant.UsageMinutesLimit != constants.UsageMinutesLifetime {
		t.Fatalf("expected usage limit %d, got %d", constants.UsageMinutesLifetime, tenant.UsageMinutesLimit)
	}
}

func TestHandleStripeWebhookUnknownTypeSkipped(t *testing.T) {
	env := setupWebhookTest(t)
	body := []byte(`{"id": "evt_misc", "type": "payout.created", "data": {"object": {"object": "payout", "id": "po_1"}}}`)

	result, err := env.svc.HandleStripeWebhook(context.Background(), nil, body)
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if result.Status != constants.WebhookEventStatusSkipped {
		t.Fatalf("expected skipped, got %s", result.Status)
	}
}

func TestHandleStripeWebhookRejectsBadSignature(t *testing.T) {
	db := openServiceTestDB(t)
	webhookRepo := repository.NewWebhookEventRepository(db)
	svc := NewWebhookService(webhookRepo, repository.NewTenantRepository(db), repository.NewUserRepository(db),
		nil, nil, &stripe.Config{SecretKey: "sk_test", WebhookSecret: "whsec_test"}, nil)

	body := invoicePaidBody("evt_forged", "in_1", "cus_1", "subscription_create", 100)
	if _, err := svc.HandleStripeWebhook(context.Background(), map[string]string{}, body); err == nil {
		t.Fatalf("expected signature error")
	}

	var count int64
	db.Model(&models.WebhookEvent{}).Count(&count)
	if count != 0 {
		t.Fatalf("unauthenticated events must not be stored, got %d", count)
	}
}

func TestHandleStripeWebhookAccountUpdated(t *testing.T) {
	env := setupWebhookTest(t)
	affiliate, _ := env.seedAttributedTenant(t, "cus_600")
	if err := env.db.Model(affiliate).Updates(map[string]interface{}{
		"stripe_account_id":     "acct_600",
		"stripe_account_status": constants.StripeAccountStatusPending,
	}).Error; err != nil {
		t.Fatalf("link account failed: %v", err)
	}

	body := []byte(`{
		"id": "evt_acct",
		"type": "account.updated",
		"data": {"object": {
			"object": "account",
			"id": "acct_600",
			"charges_enabled": true,
			"payouts_enabled": true,
			"details_submitted": true
		}}
	}`)
	result, err := env.svc.HandleStripeWebhook(context.Background(), nil, body)
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if result.Status != constants.WebhookEventStatusProcessed {
		t.Fatalf("expected processed, got %s", result.Status)
	}

	var reloaded models.Affiliate
	env.db.First(&reloaded, affiliate.ID)
	if reloaded.StripeAccountStatus != constants.StripeAccountStatusActive {
		t.Fatalf("expected active account status, got %s", reloaded.StripeAccountStatus)
	}
}
