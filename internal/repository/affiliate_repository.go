package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广伙伴数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetByID(id uint) (*models.Affiliate, error)
	GetByIDForUpdate(id uint) (*models.Affiliate, error)
	GetByUserID(userID uint) (*models.Affiliate, error)
	GetBySlug(slug string) (*models.Affiliate, error)
	GetByStripeAccountID(accountID string) (*models.Affiliate, error)
	Create(affiliate *models.Affiliate) error
	Update(affiliate *models.Affiliate) error
	UpdateStatus(id uint, status string, approvedAt *time.Time) error
	List(filter AffiliateListFilter) ([]models.Affiliate, int64, error)
	ListIDsWithAvailableRewards() ([]uint, error)

	// AddBalances 原子调整余额与累计值，绝不读改写
	AddBalances(id uint, balanceDelta, earningsDelta, paidDelta decimal.Decimal) error

	CreateAffiliateReferral(referral *models.AffiliateReferral) error
	GetAffiliateReferralByReferee(refereeID uint) (*models.AffiliateReferral, error)
	GetAffiliateReferralByRefereeForUpdate(refereeID uint) (*models.AffiliateReferral, error)
	UpdateAffiliateReferral(referral *models.AffiliateReferral) error
	CountReferralsByAffiliate(affiliateID uint, status string) (int64, error)
}

// GormAffiliateRepository GORM 推广伙伴仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广伙伴仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按 ID 获取推广档案
func (r *GormAffiliateRepository) GetByID(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.First(&affiliate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByIDForUpdate 按 ID 获取推广档案（加行锁）
func (r *GormAffiliateRepository) GetByIDForUpdate(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&affiliate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByUserID 按用户获取推广档案
func (r *GormAffiliateRepository) GetByUserID(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Where("user_id = ?", userID).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetBySlug 按推广短链标识获取档案
func (r *GormAffiliateRepository) GetBySlug(slug string) (*models.Affiliate, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Where("slug = ?", slug).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByStripeAccountID 按 Stripe Connect 账户号获取档案
func (r *GormAffiliateRepository) GetByStripeAccountID(accountID string) (*models.Affiliate, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.Where("stripe_account_id = ?", accountID).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// Create 创建推广档案
func (r *GormAffiliateRepository) Create(affiliate *models.Affiliate) error {
	return r.db.Create(affiliate).Error
}

// Update 更新推广档案
func (r *GormAffiliateRepository) Update(affiliate *models.Affiliate) error {
	return r.db.Save(affiliate).Error
}

// UpdateStatus 更新推广档案审核状态
func (r *GormAffiliateRepository) UpdateStatus(id uint, status string, approvedAt *time.Time) error {
	if id == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"status":     strings.TrimSpace(status),
		"updated_at": time.Now(),
	}
	if approvedAt != nil {
		updates["approved_at"] = *approvedAt
	}
	return r.db.Model(&models.Affiliate{}).Where("id = ?", id).Updates(updates).Error
}

// List 推广档案列表
func (r *GormAffiliateRepository) List(filter AffiliateListFilter) ([]models.Affiliate, int64, error) {
	query := r.db.Model(&models.Affiliate{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where("slug LIKE ? OR website LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var affiliates []models.Affiliate
	if err := query.Order("id DESC").Find(&affiliates).Error; err != nil {
		return nil, 0, err
	}
	return affiliates, total, nil
}

// ListIDsWithAvailableRewards 列出存在可结算流水的推广档案（打款队列）
func (r *GormAffiliateRepository) ListIDsWithAvailableRewards() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.RewardTransaction{}).
		Where("affiliate_id IS NOT NULL AND status = ?", constants.RewardStatusAvailable).
		Distinct().
		Pluck("affiliate_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AddBalances 原子调整余额与累计值
func (r *GormAffiliateRepository) AddBalances(id uint, balanceDelta, earningsDelta, paidDelta decimal.Decimal) error {
	if id == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if !balanceDelta.IsZero() {
		updates["balance"] = gorm.Expr("balance + ?", balanceDelta)
	}
	if !earningsDelta.IsZero() {
		updates["total_earnings"] = gorm.Expr("total_earnings + ?", earningsDelta)
	}
	if !paidDelta.IsZero() {
		updates["total_paid"] = gorm.Expr("total_paid + ?", paidDelta)
	}
	return r.db.Model(&models.Affiliate{}).Where("id = ?", id).Updates(updates).Error
}

// CreateAffiliateReferral 创建推广转化记录
func (r *GormAffiliateRepository) CreateAffiliateReferral(referral *models.AffiliateReferral) error {
	return r.db.Create(referral).Error
}

// GetAffiliateReferralByReferee 按被推荐用户获取转化记录
func (r *GormAffiliateRepository) GetAffiliateReferralByReferee(refereeID uint) (*models.AffiliateReferral, error) {
	if refereeID == 0 {
		return nil, nil
	}
	var referral models.AffiliateReferral
	if err := r.db.Where("referee_id = ?", refereeID).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// GetAffiliateReferralByRefereeForUpdate 按被推荐用户获取转化记录（加行锁）
func (r *GormAffiliateRepository) GetAffiliateReferralByRefereeForUpdate(refereeID uint) (*models.AffiliateReferral, error) {
	if refereeID == 0 {
		return nil, nil
	}
	var referral models.AffiliateReferral
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("referee_id = ?", refereeID).
		First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// UpdateAffiliateReferral 更新推广转化记录
func (r *GormAffiliateRepository) UpdateAffiliateReferral(referral *models.AffiliateReferral) error {
	return r.db.Save(referral).Error
}

// CountReferralsByAffiliate 统计推广伙伴的转化记录数
func (r *GormAffiliateRepository) CountReferralsByAffiliate(affiliateID uint, status string) (int64, error) {
	if affiliateID == 0 {
		return 0, nil
	}
	query := r.db.Model(&models.AffiliateReferral{}).Where("affiliate_id = ?", affiliateID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
