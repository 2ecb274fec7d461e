package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/payment/stripe"
	"github.com/orbisvoice-next/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	affiliateSlugLength   = 8
	affiliateSlugMaxRetry = 8
)

var affiliateSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,31}$`)

// ConnectClient Stripe Connect 收款账户通道
type ConnectClient interface {
	CreateExpressAccount(ctx context.Context, email string) (*stripe.AccountResult, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	GetAccount(ctx context.Context, accountID string) (*stripe.AccountResult, error)
}

// AffiliateService 推广伙伴业务服务
type AffiliateService struct {
	affiliateRepo repository.AffiliateRepository
	rewardRepo    repository.RewardRepository
	userRepo      repository.UserRepository
	settingSvc    *SettingService
	connect       ConnectClient
}

// NewAffiliateService 创建推广伙伴服务
func NewAffiliateService(
	affiliateRepo repository.AffiliateRepository,
	rewardRepo repository.RewardRepository,
	userRepo repository.UserRepository,
	settingSvc *SettingService,
	connect ConnectClient,
) *AffiliateService {
	return &AffiliateService{
		affiliateRepo: affiliateRepo,
		rewardRepo:    rewardRepo,
		userRepo:      userRepo,
		settingSvc:    settingSvc,
		connect:       connect,
	}
}

// AffiliateApplyInput 推广伙伴申请输入
type AffiliateApplyInput struct {
	UserID        uint   `json:"user_id"`
	Slug          string `json:"slug"`
	Website       string `json:"website"`
	PromotionPlan string `json:"promotion_plan"`
}

// AffiliateStats 推广伙伴数据看板
type AffiliateStats struct {
	AffiliateID      uint            `json:"affiliate_id"`
	Status           string          `json:"status"`
	Slug             string          `json:"slug"`
	Balance          decimal.Decimal `json:"balance"`
	PendingAmount    decimal.Decimal `json:"pending_amount"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	YTDEarnings      decimal.Decimal `json:"ytd_earnings"`
	ReferralCount    int64           `json:"referral_count"`
	ConvertedCount   int64           `json:"converted_count"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	TaxFormRequired  bool            `json:"tax_form_required"`
	TaxFormCompleted bool            `json:"tax_form_completed"`
	LastPayoutAt     *time.Time      `json:"last_payout_at"`
}

// Apply 提交推广伙伴申请。slug 为空时按用户名或随机串生成，冲突自动重试。
func (s *AffiliateService) Apply(input AffiliateApplyInput) (*models.Affiliate, error) {
	user, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	existing, err := s.affiliateRepo.GetByUserID(input.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAffiliateExists
	}

	slug := normalizeAffiliateSlug(input.Slug)
	if slug == "" {
		slug = normalizeAffiliateSlug(user.Username)
	}

	for i := 0; i < affiliateSlugMaxRetry; i++ {
		candidate := slug
		if candidate == "" || i > 0 {
			candidate, err = generateAffiliateSlug()
			if err != nil {
				return nil, err
			}
		}
		affiliate := &models.Affiliate{
			UserID:              input.UserID,
			Slug:                candidate,
			Status:              constants.AffiliateStatusPending,
			Website:             strings.TrimSpace(input.Website),
			PromotionPlan:       strings.TrimSpace(input.PromotionPlan),
			StripeAccountStatus: constants.StripeAccountStatusNotConnected,
		}
		if err := s.affiliateRepo.Create(affiliate); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		return affiliate, nil
	}
	return nil, ErrAffiliateExists
}

// Approve 审核通过，并把用户标记为推广身份
func (s *AffiliateService) Approve(affiliateID uint) (*models.Affiliate, error) {
	var approved *models.Affiliate
	err := s.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.affiliateRepo.WithTx(tx)
		userRepo := s.userRepo.WithTx(tx)

		affiliate, err := affiliateRepo.GetByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		now := time.Now()
		affiliate.Status = constants.AffiliateStatusActive
		affiliate.ApprovedAt = &now
		affiliate.UpdatedAt = now
		if err := affiliateRepo.Update(affiliate); err != nil {
			return err
		}

		user, err := userRepo.GetByID(affiliate.UserID)
		if err != nil {
			return err
		}
		if user != nil && !user.IsAffiliate {
			user.IsAffiliate = true
			if err := userRepo.Update(user); err != nil {
				return err
			}
		}
		approved = affiliate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// Reject 驳回申请
func (s *AffiliateService) Reject(affiliateID uint) error {
	affiliate, err := s.affiliateRepo.GetByID(affiliateID)
	if err != nil {
		return err
	}
	if affiliate == nil {
		return ErrAffiliateNotFound
	}
	return s.affiliateRepo.UpdateStatus(affiliateID, constants.AffiliateStatusRejected, nil)
}

// Disable 停用推广伙伴（已入账流水不受影响，不再产生新佣金）
func (s *AffiliateService) Disable(affiliateID uint) error {
	affiliate, err := s.affiliateRepo.GetByID(affiliateID)
	if err != nil {
		return err
	}
	if affiliate == nil {
		return ErrAffiliateNotFound
	}
	return s.affiliateRepo.UpdateStatus(affiliateID, constants.AffiliateStatusDisabled, nil)
}

// RecordReferral 记录一次推广转化归因（注册阶段）。
// 每个被推荐人终身只能归因一次，重复注册不覆盖首次归因。
func (s *AffiliateService) RecordReferral(slug string, refereeID uint) (*models.AffiliateReferral, error) {
	affiliate, err := s.affiliateRepo.GetBySlug(normalizeAffiliateSlug(slug))
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	if affiliate.Status != constants.AffiliateStatusActive {
		return nil, ErrAffiliateNotActive
	}
	if affiliate.UserID == refereeID {
		return nil, ErrSelfReferral
	}

	existing, err := s.affiliateRepo.GetAffiliateReferralByReferee(refereeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrReferralAlreadyRedeemed
	}

	setting, err := s.settingSvc.GetRewardSetting()
	if err != nil {
		return nil, err
	}
	referral := &models.AffiliateReferral{
		AffiliateID:      affiliate.ID,
		RefereeID:        refereeID,
		Status:           constants.AffiliateReferralStatusPending,
		CommissionMonths: setting.CommissionDurationMonths,
	}
	if err := s.affiliateRepo.CreateAffiliateReferral(referral); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrReferralAlreadyRedeemed
		}
		return nil, err
	}
	return referral, nil
}

// GetStats 推广伙伴数据看板
func (s *AffiliateService) GetStats(userID uint) (*AffiliateStats, error) {
	affiliate, err := s.affiliateRepo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}

	setting, err := s.settingSvc.GetRewardSetting()
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	pending, err := s.rewardRepo.SumByAffiliateAndStatus(affiliate.ID, []string{constants.RewardStatusPending})
	if err != nil {
		return nil, err
	}
	ytd, err := s.rewardRepo.SumPaidSince(userID, yearStart(time.Now()))
	if err != nil {
		return nil, err
	}
	referralCount, err := s.affiliateRepo.CountReferralsByAffiliate(affiliate.ID, "")
	if err != nil {
		return nil, err
	}
	convertedCount, err := s.affiliateRepo.CountReferralsByAffiliate(affiliate.ID, constants.AffiliateReferralStatusConverted)
	if err != nil {
		return nil, err
	}

	level := ""
	if user != nil {
		level = user.CommissionLevel
	}
	return &AffiliateStats{
		AffiliateID:      affiliate.ID,
		Status:           affiliate.Status,
		Slug:             affiliate.Slug,
		Balance:          affiliate.Balance.Decimal,
		PendingAmount:    pending,
		TotalEarnings:    affiliate.TotalEarnings.Decimal,
		TotalPaid:        affiliate.TotalPaid.Decimal,
		YTDEarnings:      ytd,
		ReferralCount:    referralCount,
		ConvertedCount:   convertedCount,
		CommissionRate:   resolveAffiliateRate(affiliate, level, setting),
		TaxFormRequired:  ytd.GreaterThanOrEqual(decimal.NewFromInt(constants.TaxFormThresholdUSD)),
		TaxFormCompleted: affiliate.TaxFormCompleted,
		LastPayoutAt:     affiliate.LastPayoutAt,
	}, nil
}

// StartOnboarding 发起 Stripe Connect 收款账户开通，返回引导链接
func (s *AffiliateService) StartOnboarding(ctx context.Context, userID uint, refreshURL, returnURL string) (string, error) {
	if s.connect == nil {
		return "", ErrPayoutAccountNotReady
	}
	affiliate, err := s.affiliateRepo.GetByUserID(userID)
	if err != nil {
		return "", err
	}
	if affiliate == nil {
		return "", ErrAffiliateNotFound
	}
	if affiliate.Status != constants.AffiliateStatusActive {
		return "", ErrAffiliateNotActive
	}

	if affiliate.StripeAccountID == "" {
		user, err := s.userRepo.GetByID(userID)
		if err != nil {
			return "", err
		}
		if user == nil {
			return "", ErrNotFound
		}
		account, err := s.connect.CreateExpressAccount(ctx, user.Email)
		if err != nil {
			return "", err
		}
		affiliate.StripeAccountID = account.AccountID
		affiliate.StripeAccountStatus = constants.StripeAccountStatusPending
		affiliate.UpdatedAt = time.Now()
		if err := s.affiliateRepo.Update(affiliate); err != nil {
			return "", err
		}
	}
	return s.connect.CreateAccountLink(ctx, affiliate.StripeAccountID, refreshURL, returnURL)
}

// RefreshAccountStatus 主动拉取 Connect 账户最新状态
func (s *AffiliateService) RefreshAccountStatus(ctx context.Context, userID uint) (*models.Affiliate, error) {
	if s.connect == nil {
		return nil, ErrPayoutAccountNotReady
	}
	affiliate, err := s.affiliateRepo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	if affiliate.StripeAccountID == "" {
		return affiliate, nil
	}
	account, err := s.connect.GetAccount(ctx, affiliate.StripeAccountID)
	if err != nil {
		return nil, err
	}
	return s.applyAccountStatus(affiliate, account.ChargesEnabled, account.PayoutsEnabled, account.DetailsSubmitted)
}

// UpdateAccountStatusFromEvent 处理 account.updated 事件推送的状态变更
func (s *AffiliateService) UpdateAccountStatusFromEvent(accountID string, chargesEnabled, payoutsEnabled, detailsSubmitted bool) (*models.Affiliate, error) {
	affiliate, err := s.affiliateRepo.GetByStripeAccountID(accountID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, nil
	}
	return s.applyAccountStatus(affiliate, chargesEnabled, payoutsEnabled, detailsSubmitted)
}

// MarkTaxFormCompleted 标记税表已提交
func (s *AffiliateService) MarkTaxFormCompleted(affiliateID uint) error {
	affiliate, err := s.affiliateRepo.GetByID(affiliateID)
	if err != nil {
		return err
	}
	if affiliate == nil {
		return ErrAffiliateNotFound
	}
	affiliate.TaxFormCompleted = true
	affiliate.UpdatedAt = time.Now()
	return s.affiliateRepo.Update(affiliate)
}

// ListAffiliates 推广伙伴列表（管理端）
func (s *AffiliateService) ListAffiliates(filter repository.AffiliateListFilter) ([]models.Affiliate, int64, error) {
	return s.affiliateRepo.List(filter)
}

func (s *AffiliateService) applyAccountStatus(affiliate *models.Affiliate, chargesEnabled, payoutsEnabled, detailsSubmitted bool) (*models.Affiliate, error) {
	status := constants.StripeAccountStatusPending
	switch {
	case chargesEnabled && payoutsEnabled:
		status = constants.StripeAccountStatusActive
	case detailsSubmitted:
		status = constants.StripeAccountStatusRestricted
	}
	if affiliate.StripeAccountStatus == status {
		return affiliate, nil
	}
	affiliate.StripeAccountStatus = status
	affiliate.UpdatedAt = time.Now()
	if err := s.affiliateRepo.Update(affiliate); err != nil {
		return nil, err
	}
	return affiliate, nil
}

// resolveAffiliateRate 佣金率取值：锁定 > 定制 > 档位
func resolveAffiliateRate(affiliate *models.Affiliate, level string, setting RewardSetting) decimal.Decimal {
	if affiliate.LockedCommissionRate != nil {
		return affiliate.LockedCommissionRate.Decimal
	}
	if affiliate.CustomCommissionRate != nil {
		return affiliate.CustomCommissionRate.Decimal
	}
	return decimal.NewFromFloat(setting.RateForLevel(level))
}

func normalizeAffiliateSlug(raw string) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	if !affiliateSlugPattern.MatchString(slug) {
		return ""
	}
	return slug
}

func generateAffiliateSlug() (string, error) {
	const alphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	var builder strings.Builder
	builder.Grow(affiliateSlugLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < affiliateSlugLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(alphabet[n.Int64()])
	}
	return builder.String(), nil
}
