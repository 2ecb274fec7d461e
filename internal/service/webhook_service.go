package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/orbisvoice-next/internal/cache"
	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/logger"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/payment/stripe"
	"github.com/orbisvoice-next/internal/queue"
	"github.com/orbisvoice-next/internal/repository"
)

const (
	webhookDedupeCacheTTL = 24 * time.Hour
	webhookReplayDelay    = 5 * time.Minute
)

// webhookDedupeKey 事件去重缓存键
func webhookDedupeKey(eventID string) string {
	return "webhook:event:" + eventID
}

// WebhookResult 事件处理结果（总是对上游确认接收）
type WebhookResult struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// WebhookService Stripe 事件路由服务
type WebhookService struct {
	webhookRepo   repository.WebhookEventRepository
	tenantRepo    repository.TenantRepository
	userRepo      repository.UserRepository
	commissionSvc *CommissionService
	affiliateSvc  *AffiliateService
	stripeCfg     *stripe.Config
	queueClient   *queue.Client
}

// NewWebhookService 创建事件路由服务
func NewWebhookService(
	webhookRepo repository.WebhookEventRepository,
	tenantRepo repository.TenantRepository,
	userRepo repository.UserRepository,
	commissionSvc *CommissionService,
	affiliateSvc *AffiliateService,
	stripeCfg *stripe.Config,
	queueClient *queue.Client,
) *WebhookService {
	return &WebhookService{
		webhookRepo:   webhookRepo,
		tenantRepo:    tenantRepo,
		userRepo:      userRepo,
		commissionSvc: commissionSvc,
		affiliateSvc:  affiliateSvc,
		stripeCfg:     stripeCfg,
		queueClient:   queueClient,
	}
}

// HandleStripeWebhook 校验、去重并分发一条 Stripe 事件。
// 签名校验失败返回错误（调用方应答 400）；校验通过后无论业务处理成败都确认接收，
// 失败事件落库并安排重放，避免上游反复重试放大故障。
func (s *WebhookService) HandleStripeWebhook(ctx context.Context, headers map[string]string, body []byte) (*WebhookResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var event *stripe.Event
	var err error
	if s.stripeCfg != nil && s.stripeCfg.WebhookSecret != "" {
		event, err = stripe.VerifyAndParseWebhook(s.stripeCfg, headers, body, time.Now())
		if err != nil {
			return nil, err
		}
	} else {
		// 未配置签名密钥时降级为不校验解析，仅用于本地联调
		logger.Warnw("webhook_signature_check_skipped", "reason", "webhook secret not configured")
		event, err = stripe.ParseWebhookEvent(body)
		if err != nil {
			return nil, err
		}
	}
	if event.ID == "" || event.Type == "" {
		return nil, ErrWebhookEventInvalid
	}

	if s.isDuplicate(ctx, event.ID) {
		return &WebhookResult{EventID: event.ID, Type: event.Type, Status: constants.WebhookEventStatusSkipped, Detail: "duplicate event"}, nil
	}

	record := &models.WebhookEvent{
		EventID:         event.ID,
		EventType:       event.Type,
		Status:          constants.WebhookEventStatusReceived,
		SourcePaymentID: eventSourcePaymentID(event),
		PayloadJSON:     models.JSON(event.Raw),
	}
	if err := s.webhookRepo.Create(record); err != nil {
		if isUniqueViolation(err) {
			return &WebhookResult{EventID: event.ID, Type: event.Type, Status: constants.WebhookEventStatusSkipped, Detail: "duplicate event"}, nil
		}
		return nil, err
	}
	s.cacheDedupe(ctx, event.ID)

	status, detail, dispatchErr := s.dispatch(ctx, event)
	if dispatchErr != nil {
		logger.Errorw("webhook_dispatch_failed", "event_id", event.ID, "type", event.Type, "error", dispatchErr)
		if markErr := s.webhookRepo.MarkStatus(record.ID, constants.WebhookEventStatusFailed, dispatchErr.Error()); markErr != nil {
			logger.Errorw("webhook_mark_failed", "event_id", event.ID, "error", markErr)
		}
		s.scheduleReplay(event.ID)
		return &WebhookResult{EventID: event.ID, Type: event.Type, Status: constants.WebhookEventStatusFailed, Detail: dispatchErr.Error()}, nil
	}

	if err := s.webhookRepo.MarkStatus(record.ID, status, ""); err != nil {
		logger.Errorw("webhook_mark_failed", "event_id", event.ID, "error", err)
	}
	return &WebhookResult{EventID: event.ID, Type: event.Type, Status: status, Detail: detail}, nil
}

// ReplayEvent 重放一条已落库事件（后台任务入口）
func (s *WebhookService) ReplayEvent(ctx context.Context, eventID string) error {
	record, err := s.webhookRepo.GetByEventID(eventID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrWebhookEventInvalid
	}
	switch record.Status {
	case constants.WebhookEventStatusProcessed, constants.WebhookEventStatusSkipped:
		return nil
	}

	raw, err := json.Marshal(record.PayloadJSON)
	if err != nil {
		return err
	}
	event, err := stripe.ParseWebhookEvent(raw)
	if err != nil {
		return err
	}

	status, _, dispatchErr := s.dispatch(ctx, event)
	if dispatchErr != nil {
		if markErr := s.webhookRepo.MarkStatus(record.ID, constants.WebhookEventStatusFailed, dispatchErr.Error()); markErr != nil {
			logger.Errorw("webhook_mark_failed", "event_id", eventID, "error", markErr)
		}
		return dispatchErr
	}
	return s.webhookRepo.MarkStatus(record.ID, status, "")
}

// dispatch 按事件类型路由，返回事件最终状态与说明
func (s *WebhookService) dispatch(ctx context.Context, event *stripe.Event) (string, string, error) {
	switch event.Type {
	case constants.StripeEventInvoicePaid, constants.StripeEventInvoicePaySucceeded:
		return s.handleInvoicePaid(event)
	case constants.StripeEventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case constants.StripeEventChargeRefunded:
		return s.handleChargeRefunded(event)
	case constants.StripeEventSubscriptionUpdated, constants.StripeEventSubscriptionDeleted:
		return s.handleSubscriptionChanged(event)
	case constants.StripeEventAccountUpdated:
		return s.handleAccountUpdated(event)
	default:
		return constants.WebhookEventStatusSkipped, "event type not handled", nil
	}
}

// handleInvoicePaid 账单支付成功：定位付费租户的归因用户并尝试入佣
func (s *WebhookService) handleInvoicePaid(event *stripe.Event) (string, string, error) {
	invoice := event.Invoice
	if invoice == nil || invoice.ID == "" {
		return "", "", ErrWebhookEventInvalid
	}

	payer, detail, err := s.resolvePayer(invoice.CustomerID)
	if err != nil {
		return "", "", err
	}
	if payer == nil {
		return constants.WebhookEventStatusSkipped, detail, nil
	}

	outcome, err := s.commissionSvc.ProcessCommission(CommissionInput{
		RefereeID:       payer.ID,
		Amount:          invoice.AmountPaid,
		SourcePaymentID: invoice.ID,
		BillingReason:   invoice.BillingReason,
		Description:     fmt.Sprintf("invoice %s", invoice.ID),
	})
	if err != nil {
		return "", "", err
	}
	return commissionOutcomeStatus(outcome), outcome.Reason, nil
}

// handleCheckoutCompleted 一次性结账完成：同步租户订阅档位，买断档自动挂载后续订阅并入佣
func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (string, string, error) {
	session := event.Session
	if session == nil || session.ID == "" {
		return "", "", ErrWebhookEventInvalid
	}
	if session.Mode != "payment" || session.PaymentStatus != "paid" {
		return constants.WebhookEventStatusSkipped, "not a paid one-time checkout", nil
	}

	tenant, err := s.tenantRepo.GetByStripeCustomerID(session.CustomerID)
	if err != nil {
		return "", "", err
	}
	tier, usageLimit := checkoutTier(session.Tier)
	if tenant != nil {
		// 无 tier 元数据的历史结账默认按买断处理
		lifetime := tier == constants.SubscriptionTierLifetime || session.Tier == ""
		if lifetime && !tenant.LifetimeDeal {
			tenant.LifetimeDeal = true
			tenant.UpdatedAt = time.Now()
			if err := s.tenantRepo.Update(tenant); err != nil {
				return "", "", err
			}
		}
		if tier != "" {
			if err := s.tenantRepo.UpdateSubscription(tenant.ID, tier, constants.TenantSubscriptionActive, "", usageLimit); err != nil {
				return "", "", err
			}
		}
		if lifetime {
			s.createLifetimeSubscription(ctx, tenant, session.CustomerID)
		}
	}

	payer, detail, err := s.resolvePayer(session.CustomerID)
	if err != nil {
		return "", "", err
	}
	if payer == nil {
		return constants.WebhookEventStatusSkipped, detail, nil
	}

	sourceID := session.PaymentIntentID
	if sourceID == "" {
		sourceID = session.ID
	}
	outcome, err := s.commissionSvc.ProcessCommission(CommissionInput{
		RefereeID:       payer.ID,
		Amount:          session.AmountTotal,
		SourcePaymentID: sourceID,
		Description:     fmt.Sprintf("checkout %s", session.ID),
	})
	if err != nil {
		return "", "", err
	}
	return commissionOutcomeStatus(outcome), outcome.Reason, nil
}

// checkoutTier 结账元数据档位映射为租户订阅档位与分钟额度
func checkoutTier(raw string) (string, int) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", 0
	case "ltd", "lifetime":
		return constants.SubscriptionTierLifetime, constants.UsageMinutesLifetime
	case "starter":
		return constants.SubscriptionTierStarter, constants.UsageMinutesStarter
	case "professional", "pro":
		return constants.SubscriptionTierPro, constants.UsageMinutesPro
	case "enterprise", "scale", "ai-revenue-infrastructure":
		return constants.SubscriptionTierScale, constants.UsageMinutesScale
	default:
		return strings.ToUpper(strings.TrimSpace(raw)), constants.UsageMinutesDefault
	}
}

const lifetimeSubscriptionTrialDays = 30

// createLifetimeSubscription 买断用户自动挂载后续月费订阅，失败只记日志不阻断入佣
func (s *WebhookService) createLifetimeSubscription(ctx context.Context, tenant *models.Tenant, customerID string) {
	if s.stripeCfg == nil || s.stripeCfg.SecretKey == "" || s.stripeCfg.LifetimePriceID == "" {
		return
	}
	result, err := stripe.CreateSubscription(ctx, s.stripeCfg, stripe.SubscriptionInput{
		CustomerID: customerID,
		PriceID:    s.stripeCfg.LifetimePriceID,
		TrialDays:  lifetimeSubscriptionTrialDays,
		Metadata: map[string]string{
			"tier":      "ltd",
			"tenant_id": fmt.Sprintf("%d", tenant.ID),
		},
	})
	if err != nil {
		logger.Errorw("lifetime_subscription_create_failed", "tenant_id", tenant.ID, "customer_id", customerID, "error", err)
		return
	}
	logger.Infow("lifetime_subscription_created", "tenant_id", tenant.ID, "subscription_id", result.SubscriptionID)
}

// handleChargeRefunded 退款：冲销该支付下的全部奖励流水。
// 找不到对应流水时把事件标记为未匹配，等后到的佣金事件对账。
func (s *WebhookService) handleChargeRefunded(event *stripe.Event) (string, string, error) {
	charge := event.Charge
	if charge == nil {
		return "", "", ErrWebhookEventInvalid
	}
	sourceID := charge.InvoiceID
	if sourceID == "" {
		sourceID = charge.PaymentIntentID
	}
	if sourceID == "" {
		return constants.WebhookEventStatusSkipped, "refund without payment reference", nil
	}

	reversed, err := s.commissionSvc.ReverseBySourcePayment(sourceID)
	if err != nil {
		return "", "", err
	}
	if reversed == 0 {
		return constants.WebhookEventStatusUnmatched, "no reward transactions for payment", nil
	}
	return constants.WebhookEventStatusProcessed, fmt.Sprintf("reversed %d transactions", reversed), nil
}

// handleSubscriptionChanged 订阅变更：同步租户档位与状态
func (s *WebhookService) handleSubscriptionChanged(event *stripe.Event) (string, string, error) {
	subscription := event.Subscription
	if subscription == nil || subscription.CustomerID == "" {
		return "", "", ErrWebhookEventInvalid
	}
	tenant, err := s.tenantRepo.GetByStripeCustomerID(subscription.CustomerID)
	if err != nil {
		return "", "", err
	}
	if tenant == nil {
		return constants.WebhookEventStatusSkipped, "tenant not found for customer", nil
	}

	tier := subscription.Tier
	status := subscription.Status
	if event.Type == constants.StripeEventSubscriptionDeleted {
		tier = constants.SubscriptionTierFree
		status = "canceled"
	}
	if err := s.tenantRepo.UpdateSubscription(tenant.ID, tier, status, subscription.ID, 0); err != nil {
		return "", "", err
	}
	return constants.WebhookEventStatusProcessed, "", nil
}

// handleAccountUpdated Connect 账户状态推送：同步推广伙伴收款账户状态
func (s *WebhookService) handleAccountUpdated(event *stripe.Event) (string, string, error) {
	account := event.Account
	if account == nil || account.ID == "" {
		return "", "", ErrWebhookEventInvalid
	}
	affiliate, err := s.affiliateSvc.UpdateAccountStatusFromEvent(account.ID, account.ChargesEnabled, account.PayoutsEnabled, account.DetailsSubmitted)
	if err != nil {
		return "", "", err
	}
	if affiliate == nil {
		return constants.WebhookEventStatusSkipped, "no affiliate for account", nil
	}
	return constants.WebhookEventStatusProcessed, "", nil
}

// resolvePayer 由 Stripe 客户号定位租户的归因用户（最早创建的成员）
func (s *WebhookService) resolvePayer(customerID string) (*models.User, string, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, "missing customer id", nil
	}
	tenant, err := s.tenantRepo.GetByStripeCustomerID(customerID)
	if err != nil {
		return nil, "", err
	}
	if tenant == nil {
		return nil, "tenant not found for customer", nil
	}
	payer, err := s.userRepo.GetFirstByTenantID(tenant.ID)
	if err != nil {
		return nil, "", err
	}
	if payer == nil {
		return nil, "tenant has no users", nil
	}
	return payer, "", nil
}

func (s *WebhookService) isDuplicate(ctx context.Context, eventID string) bool {
	if cache.Enabled() {
		var seen bool
		if ok, err := cache.GetJSON(ctx, webhookDedupeKey(eventID), &seen); err == nil && ok {
			return true
		}
	}
	record, err := s.webhookRepo.GetByEventID(eventID)
	if err != nil {
		logger.Warnw("webhook_dedupe_lookup_failed", "event_id", eventID, "error", err)
		return false
	}
	return record != nil
}

func (s *WebhookService) cacheDedupe(ctx context.Context, eventID string) {
	if !cache.Enabled() {
		return
	}
	if err := cache.SetJSON(ctx, webhookDedupeKey(eventID), true, webhookDedupeCacheTTL); err != nil {
		logger.Warnw("webhook_dedupe_cache_failed", "event_id", eventID, "error", err)
	}
}

func (s *WebhookService) scheduleReplay(eventID string) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	if err := s.queueClient.EnqueueWebhookReplay(queue.WebhookReplayPayload{EventID: eventID}, webhookReplayDelay); err != nil {
		logger.Warnw("webhook_replay_enqueue_failed", "event_id", eventID, "error", err)
	}
}

func commissionOutcomeStatus(outcome *CommissionOutcome) string {
	switch outcome.Result {
	case CommissionResultCreated:
		return constants.WebhookEventStatusProcessed
	case CommissionResultDuplicate:
		return constants.WebhookEventStatusSkipped
	default:
		return constants.WebhookEventStatusSkipped
	}
}

func eventSourcePaymentID(event *stripe.Event) string {
	switch {
	case event.Invoice != nil:
		return event.Invoice.ID
	case event.Charge != nil:
		if event.Charge.InvoiceID != "" {
			return event.Charge.InvoiceID
		}
		return event.Charge.PaymentIntentID
	case event.Session != nil:
		if event.Session.PaymentIntentID != "" {
			return event.Session.PaymentIntentID
		}
		return event.Session.ID
	}
	return ""
}
