package repository

import (
	"errors"
	"time"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardRepository 奖励流水数据访问接口
type RewardRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) RewardRepository

	Create(txn *models.RewardTransaction) error
	GetByID(id uint) (*models.RewardTransaction, error)
	GetByReferrerAndSource(referrerID uint, sourcePaymentID string) (*models.RewardTransaction, error)
	ListBySourcePayment(sourcePaymentID string, statuses []string) ([]models.RewardTransaction, error)
	ListBySourcePaymentForUpdate(sourcePaymentID string, statuses []string) ([]models.RewardTransaction, error)
	ListAvailableByAffiliateForUpdate(affiliateID uint) ([]models.RewardTransaction, error)
	ListByPayoutIDForUpdate(payoutID uint) ([]models.RewardTransaction, error)
	List(filter RewardTransactionListFilter) ([]models.RewardTransaction, int64, error)

	// UpdateStatusGuarded 带前置状态守卫的状态迁移，返回实际命中的行数
	UpdateStatusGuarded(id uint, fromStatuses []string, updates map[string]interface{}) (int64, error)
	BatchUpdate(ids []uint, updates map[string]interface{}) error
	ListDueHoldsForUpdate(now time.Time) ([]models.RewardTransaction, error)

	SumByReferrerAndStatus(referrerID uint, statuses []string) (decimal.Decimal, error)
	SumByAffiliateAndStatus(affiliateID uint, statuses []string) (decimal.Decimal, error)
	SumPaidSince(referrerID uint, since time.Time) (decimal.Decimal, error)
	CountByReferrer(referrerID uint) (int64, error)
}

// GormRewardRepository GORM 奖励流水仓储
type GormRewardRepository struct {
	db *gorm.DB
}

// NewRewardRepository 创建奖励流水仓储
func NewRewardRepository(db *gorm.DB) *GormRewardRepository {
	return &GormRewardRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRewardRepository) WithTx(tx *gorm.DB) RewardRepository {
	if tx == nil {
		return r
	}
	return &GormRewardRepository{db: tx}
}

// Transaction 执行事务
func (r *GormRewardRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建奖励流水
func (r *GormRewardRepository) Create(txn *models.RewardTransaction) error {
	return r.db.Create(txn).Error
}

// GetByID 按 ID 获取奖励流水
func (r *GormRewardRepository) GetByID(id uint) (*models.RewardTransaction, error) {
	if id == 0 {
		return nil, nil
	}
	var txn models.RewardTransaction
	if err := r.db.First(&txn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// GetByReferrerAndSource 按受益人与来源支付凭据获取流水（幂等校验）
func (r *GormRewardRepository) GetByReferrerAndSource(referrerID uint, sourcePaymentID string) (*models.RewardTransaction, error) {
	if referrerID == 0 || sourcePaymentID == "" {
		return nil, nil
	}
	var txn models.RewardTransaction
	err := r.db.Where("referrer_id = ? AND source_payment_id = ?", referrerID, sourcePaymentID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// ListBySourcePayment 按来源支付凭据列出流水
func (r *GormRewardRepository) ListBySourcePayment(sourcePaymentID string, statuses []string) ([]models.RewardTransaction, error) {
	if sourcePaymentID == "" {
		return nil, nil
	}
	query := r.db.Where("source_payment_id = ?", sourcePaymentID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var txns []models.RewardTransaction
	if err := query.Order("id ASC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListBySourcePaymentForUpdate 按来源支付凭据列出流水（加行锁）
func (r *GormRewardRepository) ListBySourcePaymentForUpdate(sourcePaymentID string, statuses []string) ([]models.RewardTransaction, error) {
	if sourcePaymentID == "" {
		return nil, nil
	}
	query := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("source_payment_id = ?", sourcePaymentID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var txns []models.RewardTransaction
	if err := query.Order("id ASC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListAvailableByAffiliateForUpdate 列出推广伙伴全部可结算流水（加行锁）
func (r *GormRewardRepository) ListAvailableByAffiliateForUpdate(affiliateID uint) ([]models.RewardTransaction, error) {
	if affiliateID == 0 {
		return nil, nil
	}
	var txns []models.RewardTransaction
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("affiliate_id = ? AND status = ?", affiliateID, constants.RewardStatusAvailable).
		Order("id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// ListByPayoutIDForUpdate 列出挂在某打款单下的全部流水（加行锁）
func (r *GormRewardRepository) ListByPayoutIDForUpdate(payoutID uint) ([]models.RewardTransaction, error) {
	if payoutID == 0 {
		return nil, nil
	}
	var txns []models.RewardTransaction
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payout_id = ?", payoutID).
		Order("id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// List 奖励流水列表
func (r *GormRewardRepository) List(filter RewardTransactionListFilter) ([]models.RewardTransaction, int64, error) {
	query := r.db.Model(&models.RewardTransaction{})

	if filter.ReferrerID > 0 {
		query = query.Where("referrer_id = ?", filter.ReferrerID)
	}
	if filter.RefereeID > 0 {
		query = query.Where("referee_id = ?", filter.RefereeID)
	}
	if filter.AffiliateID > 0 {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
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

	var txns []models.RewardTransaction
	if err := query.Order("id DESC").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// UpdateStatusGuarded 带前置状态守卫的状态迁移
func (r *GormRewardRepository) UpdateStatusGuarded(id uint, fromStatuses []string, updates map[string]interface{}) (int64, error) {
	if id == 0 || len(updates) == 0 {
		return 0, nil
	}
	query := r.db.Model(&models.RewardTransaction{}).Where("id = ?", id)
	if len(fromStatuses) > 0 {
		query = query.Where("status IN ?", fromStatuses)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// BatchUpdate 批量更新奖励流水
func (r *GormRewardRepository) BatchUpdate(ids []uint, updates map[string]interface{}) error {
	if len(ids) == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.RewardTransaction{}).Where("id IN ?", ids).Updates(updates).Error
}

// ListDueHoldsForUpdate 列出冻结期已到的待结流水（加行锁）
func (r *GormRewardRepository) ListDueHoldsForUpdate(now time.Time) ([]models.RewardTransaction, error) {
	var txns []models.RewardTransaction
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ? AND hold_ends_at IS NOT NULL AND hold_ends_at <= ?", constants.RewardStatusPending, now).
		Order("id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// SumByReferrerAndStatus 按受益人与状态汇总金额
func (r *GormRewardRepository) SumByReferrerAndStatus(referrerID uint, statuses []string) (decimal.Decimal, error) {
	if referrerID == 0 {
		return decimal.Zero, nil
	}
	query := r.db.Model(&models.RewardTransaction{}).Where("referrer_id = ?", referrerID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var total decimal.Decimal
	if err := query.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// SumByAffiliateAndStatus 按推广档案与状态汇总金额
func (r *GormRewardRepository) SumByAffiliateAndStatus(affiliateID uint, statuses []string) (decimal.Decimal, error) {
	if affiliateID == 0 {
		return decimal.Zero, nil
	}
	query := r.db.Model(&models.RewardTransaction{}).Where("affiliate_id = ?", affiliateID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var total decimal.Decimal
	if err := query.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// SumPaidSince 汇总某时间后的已打款金额（税务合规年度累计）
func (r *GormRewardRepository) SumPaidSince(referrerID uint, since time.Time) (decimal.Decimal, error) {
	if referrerID == 0 {
		return decimal.Zero, nil
	}
	var total decimal.Decimal
	err := r.db.Model(&models.RewardTransaction{}).
		Where("referrer_id = ? AND status = ? AND paid_at >= ?", referrerID, constants.RewardStatusPaid, since).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// CountByReferrer 统计受益人的流水条数
func (r *GormRewardRepository) CountByReferrer(referrerID uint) (int64, error) {
	if referrerID == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.RewardTransaction{}).
		Where("referrer_id = ?", referrerID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
