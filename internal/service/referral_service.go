package service

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	referralCodeLength   = 8
	referralCodeMaxRetry = 8
)

// ReferralService 用户互邀业务服务
type ReferralService struct {
	referralRepo repository.ReferralRepository
	rewardRepo   repository.RewardRepository
	userRepo     repository.UserRepository
	settingSvc   *SettingService
}

// NewReferralService 创建互邀服务
func NewReferralService(
	referralRepo repository.ReferralRepository,
	rewardRepo repository.RewardRepository,
	userRepo repository.UserRepository,
	settingSvc *SettingService,
) *ReferralService {
	return &ReferralService{
		referralRepo: referralRepo,
		rewardRepo:   rewardRepo,
		userRepo:     userRepo,
		settingSvc:   settingSvc,
	}
}

// ReferralStats 用户邀请数据
type ReferralStats struct {
	Code           string          `json:"code"`
	InvitedCount   int64           `json:"invited_count"`
	CompletedCount int64           `json:"completed_count"`
	PendingAmount  decimal.Decimal `json:"pending_amount"`
	EarnedAmount   decimal.Decimal `json:"earned_amount"`
}

// GetOrCreateCode 获取用户的邀请码，不存在时生成。
// 优先使用用户名作为邀请码，被占用或不合规则退回随机串。
func (s *ReferralService) GetOrCreateCode(userID uint) (*models.Referral, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	existing, err := s.referralRepo.GetFirstByReferrer(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	setting, err := s.settingSvc.GetRewardSetting()
	if err != nil {
		return nil, err
	}

	preferred := normalizeReferralCode(user.Username)
	for i := 0; i < referralCodeMaxRetry; i++ {
		code := preferred
		if code == "" || i > 0 {
			code, err = generateReferralCode()
			if err != nil {
				return nil, err
			}
		}
		// 邀请码唯一性跨所有兑换记录，先查占用再落库
		taken, err := s.referralRepo.GetByCode(code)
		if err != nil {
			return nil, err
		}
		if taken != nil {
			continue
		}
		referral := &models.Referral{
			Code:         code,
			ReferrerID:   userID,
			Status:       constants.ReferralStatusPending,
			RewardAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(setting.SignupRewardAmount)),
		}
		if err := s.referralRepo.Create(referral); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		return referral, nil
	}
	return nil, ErrReferralCodeInvalid
}

// Redeem 被邀请人注册时兑换邀请码。
// 同一用户只能兑换一次，且不能兑换自己的邀请码。
func (s *ReferralService) Redeem(code string, refereeID uint) (*models.Referral, error) {
	code = normalizeReferralCode(code)
	if code == "" {
		return nil, ErrReferralCodeInvalid
	}

	var redeemed *models.Referral
	err := s.referralRepo.Transaction(func(tx *gorm.DB) error {
		referralRepo := s.referralRepo.WithTx(tx)
		userRepo := s.userRepo.WithTx(tx)

		referral, err := referralRepo.GetByCodeForUpdate(code)
		if err != nil {
			return err
		}
		if referral == nil {
			return ErrReferralCodeInvalid
		}
		if referral.ReferrerID == refereeID {
			return ErrSelfReferral
		}

		prior, err := referralRepo.GetByReferee(refereeID)
		if err != nil {
			return err
		}
		if prior != nil {
			return ErrReferralAlreadyRedeemed
		}

		referee, err := userRepo.GetByID(refereeID)
		if err != nil {
			return err
		}
		if referee == nil {
			return ErrNotFound
		}
		if referee.ReferralCodeUsed != nil {
			return ErrReferralAlreadyRedeemed
		}

		now := time.Now()
		if referral.RefereeID == nil {
			// 首个兑换占用原始记录，后续兑换各自生成记录，保持一码多人
			referral.RefereeID = &refereeID
			referral.Status = constants.ReferralStatusAccepted
			referral.AcceptedAt = &now
			referral.UpdatedAt = now
			if err := referralRepo.Update(referral); err != nil {
				return err
			}
			redeemed = referral
		} else {
			accepted := &models.Referral{
				Code:         referral.Code,
				ReferrerID:   referral.ReferrerID,
				RefereeID:    &refereeID,
				Status:       constants.ReferralStatusAccepted,
				RewardAmount: referral.RewardAmount,
				AcceptedAt:   &now,
			}
			if err := referralRepo.Create(accepted); err != nil {
				return err
			}
			redeemed = accepted
		}

		referee.ReferralCodeUsed = &referral.Code
		return userRepo.Update(referee)
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

// GetStats 用户邀请数据看板
func (s *ReferralService) GetStats(userID uint) (*ReferralStats, error) {
	referral, err := s.GetOrCreateCode(userID)
	if err != nil {
		return nil, err
	}

	invited, err := s.referralRepo.CountByReferrer(userID, "")
	if err != nil {
		return nil, err
	}
	completed, err := s.referralRepo.CountByReferrer(userID, constants.ReferralStatusCompleted)
	if err != nil {
		return nil, err
	}
	pending, err := s.rewardRepo.SumByReferrerAndStatus(userID, []string{constants.RewardStatusPending})
	if err != nil {
		return nil, err
	}
	earned, err := s.rewardRepo.SumByReferrerAndStatus(userID, []string{
		constants.RewardStatusAvailable,
		constants.RewardStatusInTransfer,
		constants.RewardStatusPaid,
	})
	if err != nil {
		return nil, err
	}

	return &ReferralStats{
		Code:           referral.Code,
		InvitedCount:   invited,
		CompletedCount: completed,
		PendingAmount:  pending,
		EarnedAmount:   earned,
	}, nil
}

func normalizeReferralCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) < 3 || len(code) > 32 {
		return ""
	}
	for _, ch := range code {
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') && ch != '-' {
			return ""
		}
	}
	return code
}

func generateReferralCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	var builder strings.Builder
	builder.Grow(referralCodeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < referralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(alphabet[n.Int64()])
	}
	return builder.String(), nil
}
