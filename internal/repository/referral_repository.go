package repository

import (
	"errors"
	"strings"

	"github.com/orbisvoice-next/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralRepository 邀请码数据访问接口
type ReferralRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ReferralRepository

	Create(referral *models.Referral) error
	Update(referral *models.Referral) error
	GetByCode(code string) (*models.Referral, error)
	GetByCodeForUpdate(code string) (*models.Referral, error)
	GetFirstByReferrer(referrerID uint) (*models.Referral, error)
	GetByReferee(refereeID uint) (*models.Referral, error)
	List(filter ReferralListFilter) ([]models.Referral, int64, error)
	CountByReferrer(referrerID uint, status string) (int64, error)
}

// GormReferralRepository GORM 邀请码仓储
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建邀请码仓储
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// Transaction 执行事务
func (r *GormReferralRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormReferralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	if tx == nil {
		return r
	}
	return &GormReferralRepository{db: tx}
}

// Create 创建邀请码
func (r *GormReferralRepository) Create(referral *models.Referral) error {
	return r.db.Create(referral).Error
}

// Update 更新邀请记录
func (r *GormReferralRepository) Update(referral *models.Referral) error {
	return r.db.Save(referral).Error
}

// GetByCode 按邀请码获取记录
func (r *GormReferralRepository) GetByCode(code string) (*models.Referral, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var referral models.Referral
	if err := r.db.Where("code = ?", code).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// GetByCodeForUpdate 按邀请码获取记录（加行锁）
func (r *GormReferralRepository) GetByCodeForUpdate(code string) (*models.Referral, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var referral models.Referral
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).
		First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// GetFirstByReferrer 获取邀请人最早创建的邀请码
func (r *GormReferralRepository) GetFirstByReferrer(referrerID uint) (*models.Referral, error) {
	if referrerID == 0 {
		return nil, nil
	}
	var referral models.Referral
	err := r.db.Where("referrer_id = ?", referrerID).Order("id ASC").First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// GetByReferee 按被邀请人获取记录
func (r *GormReferralRepository) GetByReferee(refereeID uint) (*models.Referral, error) {
	if refereeID == 0 {
		return nil, nil
	}
	var referral models.Referral
	if err := r.db.Where("referee_id = ?", refereeID).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// List 邀请记录列表
func (r *GormReferralRepository) List(filter ReferralListFilter) ([]models.Referral, int64, error) {
	query := r.db.Model(&models.Referral{})

	if filter.ReferrerID > 0 {
		query = query.Where("referrer_id = ?", filter.ReferrerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var referrals []models.Referral
	if err := query.Order("id DESC").Find(&referrals).Error; err != nil {
		return nil, 0, err
	}
	return referrals, total, nil
}

// CountByReferrer 统计邀请人的邀请记录数
func (r *GormReferralRepository) CountByReferrer(referrerID uint, status string) (int64, error) {
	if referrerID == 0 {
		return 0, nil
	}
	query := r.db.Model(&models.Referral{}).Where("referrer_id = ?", referrerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
