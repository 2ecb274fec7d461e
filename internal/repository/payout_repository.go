package repository

import (
	"errors"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayoutRepository 打款单数据访问接口
type PayoutRepository interface {
	WithTx(tx *gorm.DB) PayoutRepository

	Create(payout *models.AffiliatePayout) error
	Update(payout *models.AffiliatePayout) error
	GetByID(id uint) (*models.AffiliatePayout, error)
	GetByIDForUpdate(id uint) (*models.AffiliatePayout, error)
	GetByStripeTransferID(transferID string) (*models.AffiliatePayout, error)
	List(filter PayoutListFilter) ([]models.AffiliatePayout, int64, error)
	CountInTransferByAffiliate(affiliateID uint) (int64, error)
}

// GormPayoutRepository GORM 打款单仓储
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建打款单仓储
func NewPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPayoutRepository) WithTx(tx *gorm.DB) PayoutRepository {
	if tx == nil {
		return r
	}
	return &GormPayoutRepository{db: tx}
}

// Create 创建打款单
func (r *GormPayoutRepository) Create(payout *models.AffiliatePayout) error {
	return r.db.Create(payout).Error
}

// Update 更新打款单
func (r *GormPayoutRepository) Update(payout *models.AffiliatePayout) error {
	return r.db.Save(payout).Error
}

// GetByID 按 ID 获取打款单
func (r *GormPayoutRepository) GetByID(id uint) (*models.AffiliatePayout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.AffiliatePayout
	if err := r.db.First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// GetByIDForUpdate 按 ID 获取打款单（加行锁）
func (r *GormPayoutRepository) GetByIDForUpdate(id uint) (*models.AffiliatePayout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.AffiliatePayout
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// GetByStripeTransferID 按 Stripe Transfer 凭据号获取打款单
func (r *GormPayoutRepository) GetByStripeTransferID(transferID string) (*models.AffiliatePayout, error) {
	if transferID == "" {
		return nil, nil
	}
	var payout models.AffiliatePayout
	if err := r.db.Where("stripe_transfer_id = ?", transferID).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// List 打款单列表
func (r *GormPayoutRepository) List(filter PayoutListFilter) ([]models.AffiliatePayout, int64, error) {
	query := r.db.Model(&models.AffiliatePayout{})

	if filter.AffiliateID > 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var payouts []models.AffiliatePayout
	if err := query.Order("id DESC").Find(&payouts).Error; err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}

// CountInTransferByAffiliate 统计在途打款单数（并发打款闸门）
func (r *GormPayoutRepository) CountInTransferByAffiliate(affiliateID uint) (int64, error) {
	if affiliateID == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.AffiliatePayout{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, constants.PayoutStatusInTransfer).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
