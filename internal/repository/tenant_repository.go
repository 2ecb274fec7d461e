package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/orbisvoice-next/internal/models"
	"gorm.io/gorm"
)

// TenantRepository 租户数据访问接口
type TenantRepository interface {
	WithTx(tx *gorm.DB) TenantRepository

	Create(tenant *models.Tenant) error
	Update(tenant *models.Tenant) error
	GetByID(id uint) (*models.Tenant, error)
	GetByStripeCustomerID(customerID string) (*models.Tenant, error)
	UpdateSubscription(id uint, tier, status, subscriptionID string, usageLimit int) error
}

// GormTenantRepository GORM 租户仓储
type GormTenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository 创建租户仓储
func NewTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// WithTx 绑定事务
func (r *GormTenantRepository) WithTx(tx *gorm.DB) TenantRepository {
	if tx == nil {
		return r
	}
	return &GormTenantRepository{db: tx}
}

// Create 创建租户
func (r *GormTenantRepository) Create(tenant *models.Tenant) error {
	return r.db.Create(tenant).Error
}

// Update 更新租户
func (r *GormTenantRepository) Update(tenant *models.Tenant) error {
	return r.db.Save(tenant).Error
}

// GetByID 按 ID 获取租户
func (r *GormTenantRepository) GetByID(id uint) (*models.Tenant, error) {
	if id == 0 {
		return nil, nil
	}
	var tenant models.Tenant
	if err := r.db.First(&tenant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// GetByStripeCustomerID 按 Stripe 客户号获取租户（账单事件回查入口）
func (r *GormTenantRepository) GetByStripeCustomerID(customerID string) (*models.Tenant, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	var tenant models.Tenant
	if err := r.db.Where("stripe_customer_id = ?", customerID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// UpdateSubscription 更新租户订阅档位与状态
func (r *GormTenantRepository) UpdateSubscription(id uint, tier, status, subscriptionID string, usageLimit int) error {
	if id == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if tier != "" {
		updates["subscription_tier"] = tier
	}
	if status != "" {
		updates["subscription_status"] = status
	}
	if subscriptionID != "" {
		updates["subscription_id"] = subscriptionID
	}
	if usageLimit > 0 {
		updates["usage_minutes_limit"] = usageLimit
	}
	return r.db.Model(&models.Tenant{}).Where("id = ?", id).Updates(updates).Error
}
