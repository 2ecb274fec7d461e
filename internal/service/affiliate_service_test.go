package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/repository"
)

type affiliateTestEnv struct {
	db  *gorm.DB
	svc *AffiliateService
}

func setupAffiliateTest(t *testing.T) *affiliateTestEnv {
	t.Helper()
	db := openServiceTestDB(t)
	svc := NewAffiliateService(
		repository.NewAffiliateRepository(db),
		repository.NewRewardRepository(db),
		repository.NewUserRepository(db),
		NewSettingService(repository.NewSettingRepository(db)),
		nil,
	)
	return &affiliateTestEnv{db: db, svc: svc}
}

func (env *affiliateTestEnv) createUser(t *testing.T, username string) *models.User {
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

func TestAffiliateApplyAndApprove(t *testing.T) {
	env := setupAffiliateTest(t)
	user := env.createUser(t, "creator")

	affiliate, err := env.svc.Apply(AffiliateApplyInput{
		UserID:  user.ID,
		Slug:    "  Creator-Studio  ",
		Website: "https://creator.example.com",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if affiliate.Slug != "creator-studio" {
		t.Fatalf("expected normalized slug, got %s", affiliate.Slug)
	}
	if affiliate.Status != constants.AffiliateStatusPending {
		t.Fatalf("expected pending, got %s", affiliate.Status)
	}

	if _, err := env.svc.Apply(AffiliateApplyInput{UserID: user.ID}); !errors.Is(err, ErrAffiliateExists) {
		t.Fatalf("expected duplicate application error, got %v", err)
	}

	approved, err := env.svc.Approve(affiliate.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != constants.AffiliateStatusActive {
		t.Fatalf("expected active, got %s", approved.Status)
	}
	if approved.ApprovedAt == nil {
		t.Fatalf("expected approval timestamp")
	}

	var reloaded models.User
	if err := env.db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	if !reloaded.IsAffiliate {
		t.Fatalf("expected user flagged as affiliate")
	}
}

func TestAffiliateApplyFallsBackToUsernameSlug(t *testing.T) {
	env := setupAffiliateTest(t)
	user := env.createUser(t, "plainname")

	affiliate, err := env.svc.Apply(AffiliateApplyInput{UserID: user.ID, Slug: "!!bad slug!!"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if affiliate.Slug != "plainname" {
		t.Fatalf("expected username slug, got %s", affiliate.Slug)
	}
}

func TestAffiliateRejectAndDisable(t *testing.T) {
	env := setupAffiliateTest(t)
	user := env.createUser(t, "shady")
	affiliate, err := env.svc.Apply(AffiliateApplyInput{UserID: user.ID, Slug: "shady"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if err := env.svc.Reject(affiliate.ID); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	var reloaded models.Affiliate
	env.db.First(&reloaded, affiliate.ID)
	if reloaded.Status != constants.AffiliateStatusRejected {
		t.Fatalf("expected rejected, got %s", reloaded.Status)
	}

	if err := env.svc.Disable(affiliate.ID); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	env.db.First(&reloaded, affiliate.ID)
	if reloaded.Status != constants.AffiliateStatusDisabled {
		t.Fatalf("expected disabled, got %s", reloaded.Status)
	}

	if err := env.svc.Reject(404); !errors.Is(err, ErrAffiliateNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestRecordReferralSingleAttribution(t *testing.T) {
	env := setupAffiliateTest(t)
	partner := env.createUser(t, "partner")
	rival := env.createUser(t, "rival")
	referee := env.createUser(t, "newcomer")

	first, err := env.svc.Apply(AffiliateApplyInput{UserID: partner.ID, Slug: "partner"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, err := env.svc.Approve(first.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	second, err := env.svc.Apply(AffiliateApplyInput{UserID: rival.ID, Slug: "rival"})
	if err != nil {
		t.Fatalf("apply rival failed: %v", err)
	}
	if _, err := env.svc.Approve(second.ID); err != nil {
		t.Fatalf("approve rival failed: %v", err)
	}

	referral, err := env.svc.RecordReferral("partner", referee.ID)
	if err != nil {
		t.Fatalf("record referral failed: %v", err)
	}
	if referral.Status != constants.AffiliateReferralStatusPending {
		t.Fatalf("expected pending attribution, got %s", referral.Status)
	}

	// 终身只归因一次，换个短链也不行
	if _, err := env.svc.RecordReferral("rival", referee.ID); !errors.Is(err, ErrReferralAlreadyRedeemed) {
		t.Fatalf("expected attribution conflict, got %v", err)
	}
}

func TestRecordReferralGuards(t *testing.T) {
	env := setupAffiliateTest(t)
	partner := env.createUser(t, "partner")
	referee := env.createUser(t, "guest")

	affiliate, err := env.svc.Apply(AffiliateApplyInput{UserID: partner.ID, Slug: "partner"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	// 未审核通过不接收归因
	if _, err := env.svc.RecordReferral("partner", referee.ID); !errors.Is(err, ErrAffiliateNotActive) {
		t.Fatalf("expected not-active error, got %v", err)
	}

	if _, err := env.svc.Approve(affiliate.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := env.svc.RecordReferral("partner", partner.ID); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected self referral error, got %v", err)
	}
	if _, err := env.svc.RecordReferral("ghost", referee.ID); !errors.Is(err, ErrAffiliateNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestAffiliateStatsCommissionRate(t *testing.T) {
	env := setupAffiliateTest(t)
	user := env.createUser(t, "rated")
	affiliate, err := env.svc.Apply(AffiliateApplyInput{UserID: user.ID, Slug: "rated"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, err := env.svc.Approve(affiliate.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	stats, err := env.svc.GetStats(user.ID)
	if err != nil {
		t.Fatalf("get stats failed: %v", err)
	}
	if stats.CommissionRate.StringFixed(2) != "10.00" {
		t.Fatalf("expected default level rate 10.00, got %s", stats.CommissionRate.StringFixed(2))
	}

	custom := models.NewMoneyFromDecimal(decimal.NewFromInt(25))
	if err := env.db.Model(affiliate).Update("custom_commission_rate", custom).Error; err != nil {
		t.Fatalf("set custom rate failed: %v", err)
	}
	stats, err = env.svc.GetStats(user.ID)
	if err != nil {
		t.Fatalf("get stats failed: %v", err)
	}
	if stats.CommissionRate.StringFixed(2) != "25.00" {
		t.Fatalf("expected custom rate 25.00, got %s", stats.CommissionRate.StringFixed(2))
	}
}

func TestMarkTaxFormCompleted(t *testing.T) {
	env := setupAffiliateTest(t)
	user := env.createUser(t, "taxed")
	affiliate, err := env.svc.Apply(AffiliateApplyInput{UserID: user.ID, Slug: "taxed"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if err := env.svc.MarkTaxFormCompleted(affiliate.ID); err != nil {
		t.Fatalf("mark tax form failed: %v", err)
	}
	var reloaded models.Affiliate
	env.db.First(&reloaded, affiliate.ID)
	if !reloaded.TaxFormCompleted {
		t.Fatalf("expected tax form flag set")
	}

	if err := env.svc.MarkTaxFormCompleted(404); !errors.Is(err, ErrAffiliateNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
