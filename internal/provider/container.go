package provider

import (
	"github.com/orbisvoice-next/internal/authz"
	"github.com/orbisvoice-next/internal/cache"
	"github.com/orbisvoice-next/internal/config"
	"github.com/orbisvoice-next/internal/logger"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/payment/stripe"
	"github.com/orbisvoice-next/internal/queue"
	"github.com/orbisvoice-next/internal/repository"
	"github.com/orbisvoice-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config       *config.Config
	QueueClient  *queue.Client
	StripeClient *stripe.Client

	// Repositories
	AdminRepo        repository.AdminRepository
	UserRepo         repository.UserRepository
	TenantRepo       repository.TenantRepository
	AffiliateRepo    repository.AffiliateRepository
	ReferralRepo     repository.ReferralRepository
	RewardRepo       repository.RewardRepository
	PayoutRepo       repository.PayoutRepository
	WebhookEventRepo repository.WebhookEventRepository
	SettingRepo      repository.SettingRepository

	// Services
	AuthzService      *authz.Service
	AuthService       *service.AuthService
	UserAuthService   *service.UserAuthService
	SettingService    *service.SettingService
	ReferralService   *service.ReferralService
	AffiliateService  *service.AffiliateService
	CommissionService *service.CommissionService
	PayoutService     *service.PayoutService
	WebhookService    *service.WebhookService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.TenantRepo = repository.NewTenantRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
	c.RewardRepo = repository.NewRewardRepository(db)
	c.PayoutRepo = repository.NewPayoutRepository(db)
	c.WebhookEventRepo = repository.NewWebhookEventRepository(db)
	c.SettingRepo = repository.NewSettingRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	stripeCfg := &stripe.Config{
		SecretKey:               c.Config.Stripe.SecretKey,
		WebhookSecret:           c.Config.Stripe.WebhookSecret,
		APIBaseURL:              c.Config.Stripe.APIBaseURL,
		WebhookToleranceSeconds: c.Config.Stripe.WebhookToleranceSeconds,
		LifetimePriceID:         c.Config.Stripe.LifetimePriceID,
	}
	c.StripeClient = stripe.NewClient(stripeCfg)

	c.SettingService = service.NewSettingService(c.SettingRepo)
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.ReferralService = service.NewReferralService(c.ReferralRepo, c.RewardRepo, c.UserRepo, c.SettingService)
	c.AffiliateService = service.NewAffiliateService(c.AffiliateRepo, c.RewardRepo, c.UserRepo, c.SettingService, c.StripeClient)
	c.UserAuthService = service.NewUserAuthService(c.Config, c.UserRepo, c.TenantRepo, c.ReferralService, c.AffiliateService)
	c.CommissionService = service.NewCommissionService(c.RewardRepo, c.AffiliateRepo, c.ReferralRepo, c.UserRepo, c.WebhookEventRepo, c.SettingService, c.QueueClient)
	c.PayoutService = service.NewPayoutService(c.AffiliateRepo, c.RewardRepo, c.PayoutRepo, c.SettingService, c.StripeClient, c.QueueClient)
	c.WebhookService = service.NewWebhookService(c.WebhookEventRepo, c.TenantRepo, c.UserRepo, c.CommissionService, c.AffiliateService, c.StripeClient.Config(), c.QueueClient)
}
