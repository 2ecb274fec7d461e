package service

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/repository"
)

type referralTestEnv struct {
	db  *gorm.DB
	svc *ReferralService
}

func setupReferralTest(t *testing.T) *referralTestEnv {
	t.Helper()
	db := openServiceTestDB(t)
	svc := NewReferralService(
		repository.NewReferralRepository(db),
		repository.NewRewardRepository(db),
		repository.NewUserRepository(db),
		NewSettingService(repository.NewSettingRepository(db)),
	)
	return &referralTestEnv{db: db, svc: svc}
}

func (env *referralTestEnv) createUser(t *testing.T, username string) *models.User {
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

func TestGetOrCreateCodeUsesUsername(t *testing.T) {
	env := setupReferralTest(t)
	user := env.createUser(t, "maria")

	referral, err := env.svc.GetOrCreateCode(user.ID)
	if err != nil {
		t.Fatalf("get or create code failed: %v", err)
	}
	if referral.Code != "MARIA" {
		t.Fatalf("expected code MARIA, got %s", referral.Code)
	}
	if got := referral.RewardAmount.Decimal.StringFixed(2); got != "10.00" {
		t.Fatalf("expected signup reward 10.00, got %s", got)
	}

	again, err := env.svc.GetOrCreateCode(user.ID)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if again.ID != referral.ID {
		t.Fatalf("expected stable code record, got %d != %d", again.ID, referral.ID)
	}
}

func TestGetOrCreateCodeFallsBackOnCollision(t *testing.T) {
	env := setupReferralTest(t)
	first := env.createUser(t, "sam")
	if _, err := env.svc.GetOrCreateCode(first.ID); err != nil {
		t.Fatalf("seed first code failed: %v", err)
	}

	// 用户名撞码时退回随机串
	dup := env.createUser(t, "Sam")
	referral, err := env.svc.GetOrCreateCode(dup.ID)
	if err != nil {
		t.Fatalf("get or create code failed: %v", err)
	}
	if referral.Code == "SAM" {
		t.Fatalf("expected fallback code, got the taken one")
	}
	if referral.ReferrerID != dup.ID {
		t.Fatalf("expected code owned by %d", dup.ID)
	}
}

func TestRedeemReferralCode(t *testing.T) {
	env := setupReferralTest(t)
	referrer := env.createUser(t, "inviter")
	referee := env.createUser(t, "invitee")
	code, err := env.svc.GetOrCreateCode(referrer.ID)
	if err != nil {
		t.Fatalf("create code failed: %v", err)
	}

	redeemed, err := env.svc.Redeem(code.Code, referee.ID)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if redeemed.Status != constants.ReferralStatusAccepted {
		t.Fatalf("expected accepted, got %s", redeemed.Status)
	}
	if redeemed.RefereeID == nil || *redeemed.RefereeID != referee.ID {
		t.Fatalf("expected referee bound")
	}

	var reloaded models.User
	if err := env.db.First(&reloaded, referee.ID).Error; err != nil {
		t.Fatalf("reload referee failed: %v", err)
	}
	if reloaded.ReferralCodeUsed == nil || *reloaded.ReferralCodeUsed != code.Code {
		t.Fatalf("expected referral code recorded on referee")
	}
}

func TestRedeemSelfReferralRejected(t *testing.T) {
	env := setupReferralTest(t)
	user := env.createUser(t, "selfish")
	code, err := env.svc.GetOrCreateCode(user.ID)
	if err != nil {
		t.Fatalf("create code failed: %v", err)
	}

	if _, err := env.svc.Redeem(code.Code, user.ID); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected self referral error, got %v", err)
	}
}

func TestRedeemOnlyOncePerReferee(t *testing.T) {
	env := setupReferralTest(t)
	first := env.createUser(t, "alpha")
	second := env.createUser(t, "beta")
	referee := env.createUser(t, "gamma")

	codeA, _ := env.svc.GetOrCreateCode(first.ID)
	codeB, _ := env.svc.GetOrCreateCode(second.ID)

	if _, err := env.svc.Redeem(codeA.Code, referee.ID); err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}
	if _, err := env.svc.Redeem(codeB.Code, referee.ID); !errors.Is(err, ErrReferralAlreadyRedeemed) {
		t.Fatalf("expected already-redeemed error, got %v", err)
	}
}

func TestRedeemSameCodeByMultipleReferees(t *testing.T) {
	env := setupReferralTest(t)
	referrer := env.createUser(t, "popular")
	one := env.createUser(t, "fan1")
	two := env.createUser(t, "fan2")
	code, _ := env.svc.GetOrCreateCode(referrer.ID)

	if _, err := env.svc.Redeem(code.Code, one.ID); err != nil {
		t.Fatalf("first referee redeem failed: %v", err)
	}
	redeemed, err := env.svc.Redeem(code.Code, two.ID)
	if err != nil {
		t.Fatalf("second referee redeem failed: %v", err)
	}
	if redeemed.RefereeID == nil || *redeemed.RefereeID != two.ID {
		t.Fatalf("expected fresh record for second referee")
	}
	if got := redeemed.RewardAmount.Decimal.StringFixed(2); got != "10.00" {
		t.Fatalf("expected signup reward carried over, got %s", got)
	}

	var count int64
	env.db.Model(&models.Referral{}).Where("code = ?", code.Code).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 referral rows for shared code, got %d", count)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	env := setupReferralTest(t)
	referee := env.createUser(t, "lost")
	if _, err := env.svc.Redeem("NOPE", referee.ID); !errors.Is(err, ErrReferralCodeInvalid) {
		t.Fatalf("expected invalid code error, got %v", err)
	}
}
