package service

import (
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/orbisvoice-next/internal/config"
	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/repository"
)

type userAuthTestEnv struct {
	db           *gorm.DB
	svc          *UserAuthService
	referralSvc  *ReferralService
	affiliateSvc *AffiliateService
}

func userAuthTestConfig() *config.Config {
	return &config.Config{
		UserJWT: config.JWTConfig{
			SecretKey:   "user-jwt-test-secret",
			ExpireHours: 2,
		},
		Security: config.SecurityConfig{
			PasswordPolicy: config.PasswordPolicyConfig{MinLength: 8},
		},
	}
}

func setupUserAuthTest(t *testing.T) *userAuthTestEnv {
	t.Helper()
	db := openServiceTestDB(t)
	userRepo := repository.NewUserRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	settingSvc := NewSettingService(repository.NewSettingRepository(db))
	referralSvc := NewReferralService(
		repository.NewReferralRepository(db),
		repository.NewRewardRepository(db),
		userRepo,
		settingSvc,
	)
	affiliateSvc := NewAffiliateService(
		repository.NewAffiliateRepository(db),
		repository.NewRewardRepository(db),
		userRepo,
		settingSvc,
		nil,
	)
	svc := NewUserAuthService(userAuthTestConfig(), userRepo, tenantRepo, referralSvc, affiliateSvc)
	return &userAuthTestEnv{db: db, svc: svc, referralSvc: referralSvc, affiliateSvc: affiliateSvc}
}

func TestRegisterCreatesTenant(t *testing.T) {
	env := setupUserAuthTest(t)

	user, token, expiresAt, err := env.svc.Register(UserRegisterInput{
		Email:    "Maria@Example.com",
		Password: "supersecret1",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "maria@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
	if user.Username != "maria" {
		t.Fatalf("expected username derived from email, got %s", user.Username)
	}
	if token == "" || expiresAt.Before(time.Now()) {
		t.Fatalf("expected valid token")
	}
	if user.TenantID == nil {
		t.Fatalf("expected tenant bound to user")
	}

	var tenant models.Tenant
	if err := env.db.First(&tenant, *user.TenantID).Error; err != nil {
		t.Fatalf("reload tenant failed: %v", err)
	}
	if tenant.OwnerUserID != user.ID {
		t.Fatalf("expected tenant owned by user")
	}
	if tenant.SubscriptionTier != constants.SubscriptionTierFree {
		t.Fatalf("expected free tier, got %s", tenant.SubscriptionTier)
	}

	claims, err := env.svc.ParseUserJWT(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected claims for user %d, got %d", user.ID, claims.UserID)
	}
}

func TestRegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	env := setupUserAuthTest(t)

	if _, _, _, err := env.svc.Register(UserRegisterInput{Email: "a@example.com", Password: "short"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password error, got %v", err)
	}

	if _, _, _, err := env.svc.Register(UserRegisterInput{Email: "a@example.com", Password: "supersecret1"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, _, _, err := env.svc.Register(UserRegisterInput{Email: "A@example.com", Password: "supersecret1"}); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected email conflict, got %v", err)
	}
	if _, _, _, err := env.svc.Register(UserRegisterInput{Email: "b@example.com", Username: "a", Password: "supersecret1"}); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("expected username conflict, got %v", err)
	}
}

func TestRegisterAttributesReferralCode(t *testing.T) {
	env := setupUserAuthTest(t)

	inviter, _, _, err := env.svc.Register(UserRegisterInput{Email: "inviter@example.com", Password: "supersecret1"})
	if err != nil {
		t.Fatalf("register inviter failed: %v", err)
	}
	code, err := env.referralSvc.GetOrCreateCode(inviter.ID)
	if err != nil {
		t.Fatalf("create code failed: %v", err)
	}

	invited, _, _, err := env.svc.Register(UserRegisterInput{
		Email:        "invited@example.com",
		Password:     "supersecret1",
		ReferralCode: code.Code,
	})
	if err != nil {
		t.Fatalf("register invited failed: %v", err)
	}

	var reloaded models.User
	if err := env.db.First(&reloaded, invited.ID).Error; err != nil {
		t.Fatalf("reload invited failed: %v", err)
	}
	if reloaded.ReferralCodeUsed == nil || *reloaded.ReferralCodeUsed != code.Code {
		t.Fatalf("expected referral attribution recorded")
	}
}

func TestRegisterAttributesAffiliateSlug(t *testing.T) {
	env := setupUserAuthTest(t)

	partner, _, _, err := env.svc.Register(UserRegisterInput{Email: "partner@example.com", Password: "supersecret1"})
	if err != nil {
		t.Fatalf("register partner failed: %v", err)
	}
	affiliate, err := env.affiliateSvc.Apply(AffiliateApplyInput{UserID: partner.ID, Slug: "voicepro"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, err := env.affiliateSvc.Approve(affiliate.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	visitor, _, _, err := env.svc.Register(UserRegisterInput{
		Email:        "visitor@example.com",
		Password:     "supersecret1",
		ReferralCode: "voicepro",
	})
	if err != nil {
		t.Fatalf("register visitor failed: %v", err)
	}

	var attribution models.AffiliateReferral
	if err := env.db.Where("referee_id = ?", visitor.ID).First(&attribution).Error; err != nil {
		t.Fatalf("expected affiliate attribution: %v", err)
	}
	if attribution.AffiliateID != affiliate.ID {
		t.Fatalf("expected attribution to affiliate %d", affiliate.ID)
	}
}

func TestRegisterSurvivesBadReferralCode(t *testing.T) {
	env := setupUserAuthTest(t)

	// 归因尽力而为，无效码不阻断注册
	user, _, _, err := env.svc.Register(UserRegisterInput{
		Email:        "solo@example.com",
		Password:     "supersecret1",
		ReferralCode: "no-such-code",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	var reloaded models.User
	if err := env.db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	if reloaded.ReferralCodeUsed != nil {
		t.Fatalf("expected no attribution on invalid code")
	}
}

func TestLoginFlows(t *testing.T) {
	env := setupUserAuthTest(t)
	registered, _, _, err := env.svc.Register(UserRegisterInput{Email: "leo@example.com", Password: "supersecret1"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, token, _, err := env.svc.Login("LEO@example.com", "supersecret1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != registered.ID || token == "" {
		t.Fatalf("expected login for registered user")
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last login recorded")
	}

	if _, _, _, err := env.svc.Login("leo@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, _, err := env.svc.Login("ghost@example.com", "supersecret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}

	if err := env.db.Model(&models.User{}).Where("id = ?", registered.ID).Update("status", constants.UserStatusDisabled).Error; err != nil {
		t.Fatalf("disable user failed: %v", err)
	}
	if _, _, _, err := env.svc.Login("leo@example.com", "supersecret1"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}
