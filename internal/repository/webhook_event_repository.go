package repository

import (
	"errors"
	"time"

	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/models"
	"gorm.io/gorm"
)

// WebhookEventRepository Webhook 事件数据访问接口
type WebhookEventRepository interface {
	WithTx(tx *gorm.DB) WebhookEventRepository

	Create(event *models.WebhookEvent) error
	Update(event *models.WebhookEvent) error
	GetByEventID(eventID string) (*models.WebhookEvent, error)
	MarkStatus(id uint, status string, lastError string) error
	ListUnmatchedRefundsBySource(sourcePaymentID string) ([]models.WebhookEvent, error)
	ListByStatus(status string, limit int) ([]models.WebhookEvent, error)
	List(filter WebhookEventListFilter) ([]models.WebhookEvent, int64, error)
}

// GormWebhookEventRepository GORM Webhook 事件仓储
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository 创建 Webhook 事件仓储
func NewWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWebhookEventRepository) WithTx(tx *gorm.DB) WebhookEventRepository {
	if tx == nil {
		return r
	}
	return &GormWebhookEventRepository{db: tx}
}

// Create 落库 Webhook 事件
func (r *GormWebhookEventRepository) Create(event *models.WebhookEvent) error {
	return r.db.Create(event).Error
}

// Update 更新 Webhook 事件
func (r *GormWebhookEventRepository) Update(event *models.WebhookEvent) error {
	return r.db.Save(event).Error
}

// GetByEventID 按上游事件号获取记录（幂等去重）
func (r *GormWebhookEventRepository) GetByEventID(eventID string) (*models.WebhookEvent, error) {
	if eventID == "" {
		return nil, nil
	}
	var event models.WebhookEvent
	if err := r.db.Where("event_id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// MarkStatus 更新事件处理状态并累加尝试次数
func (r *GormWebhookEventRepository) MarkStatus(id uint, status string, lastError string) error {
	if id == 0 {
		return nil
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":     status,
		"last_error": lastError,
		"attempts":   gorm.Expr("attempts + 1"),
		"updated_at": now,
	}
	if status == constants.WebhookEventStatusProcessed || status == constants.WebhookEventStatusSkipped {
		updates["processed_at"] = now
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// ListUnmatchedRefundsBySource 列出某支付凭据下尚未匹配的退款事件
func (r *GormWebhookEventRepository) ListUnmatchedRefundsBySource(sourcePaymentID string) ([]models.WebhookEvent, error) {
	if sourcePaymentID == "" {
		return nil, nil
	}
	var events []models.WebhookEvent
	err := r.db.Where("source_payment_id = ? AND status = ?", sourcePaymentID, constants.WebhookEventStatusUnmatched).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListByStatus 按处理状态列出事件（重放扫描）
func (r *GormWebhookEventRepository) ListByStatus(status string, limit int) ([]models.WebhookEvent, error) {
	if status == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var events []models.WebhookEvent
	err := r.db.Where("status = ?", status).Order("id ASC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// List Webhook 事件列表
func (r *GormWebhookEventRepository) List(filter WebhookEventListFilter) ([]models.WebhookEvent, int64, error) {
	query := r.db.Model(&models.WebhookEvent{})

	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
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

	var events []models.WebhookEvent
	if err := query.Order("id DESC").Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
