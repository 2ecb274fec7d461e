package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orbisvoice-next/internal/authz"
	"github.com/orbisvoice-next/internal/cache"
	"github.com/orbisvoice-next/internal/config"
	adminhandlers "github.com/orbisvoice-next/internal/http/handlers/admin"
	publichandlers "github.com/orbisvoice-next/internal/http/handlers/public"
	"github.com/orbisvoice-next/internal/http/response"
	"github.com/orbisvoice-next/internal/logger"
	"github.com/orbisvoice-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ov"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
	}
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/config", publicHandler.GetConfig)
		}

		// 用户认证接口
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", publicHandler.UserRegister)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.UserLogin)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo))
		{
			user.GET("/me", publicHandler.GetCurrentUser)
			user.GET("/me/referral-code", publicHandler.GetMyReferralCode)
			user.GET("/me/referral-stats", publicHandler.GetMyReferralStats)
			user.POST("/me/referral/redeem", publicHandler.RedeemReferral)
			user.POST("/me/affiliate/apply", publicHandler.ApplyAffiliate)
			user.GET("/me/affiliate/stats", publicHandler.GetMyAffiliateStats)
			user.POST("/me/affiliate/onboarding", publicHandler.StartAffiliateOnboarding)
			user.POST("/me/affiliate/account/refresh", publicHandler.RefreshAffiliateAccountStatus)
		}

		// 支付平台 Webhook（签名校验在 handler 内完成）
		apiV1.POST("/payments/webhook/stripe", publicHandler.StripeWebhook)

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIP), adminHandler.AdminLogin)

			// 需要鉴权的接口
			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				// 推广伙伴管理
				authorized.GET("/affiliates", adminHandler.ListAffiliates)
				authorized.POST("/affiliates/:id/approve", adminHandler.ApproveAffiliate)
				authorized.POST("/affiliates/:id/reject", adminHandler.RejectAffiliate)
				authorized.POST("/affiliates/:id/disable", adminHandler.DisableAffiliate)
				authorized.POST("/affiliates/:id/tax-form", adminHandler.MarkAffiliateTaxForm)

				// 打款管理
				authorized.GET("/payouts/queue", adminHandler.GetPayoutQueue)
				authorized.GET("/payouts", adminHandler.ListPayouts)
				authorized.POST("/payouts/bulk", adminHandler.ProcessBulkPayouts)
				authorized.POST("/affiliates/:id/payout", adminHandler.ProcessPayout)

				// 奖励流水与 Webhook 审计
				authorized.GET("/reward-transactions", adminHandler.ListRewardTransactions)
				authorized.POST("/reward-transactions/release-holds", adminHandler.ReleaseDueHolds)
				authorized.GET("/webhook-events", adminHandler.ListWebhookEvents)
				authorized.POST("/webhook-events/:event_id/replay", adminHandler.ReplayWebhookEvent)

				// 邀请与用户管理
				authorized.GET("/referrals", adminHandler.ListReferrals)
				authorized.GET("/users", adminHandler.GetAdminUsers)
				authorized.PUT("/users/:id/commission-level", adminHandler.UpdateUserCommissionLevel)

				// 设置管理
				authorized.GET("/settings", adminHandler.GetSettings)
				authorized.PUT("/settings", adminHandler.UpdateSettings)
				authorized.GET("/settings/rewards", adminHandler.GetRewardSettings)
				authorized.PUT("/settings/rewards", adminHandler.UpdateRewardSettings)
				authorized.PUT("/password", adminHandler.UpdateAdminPassword) // 修改密码

				// 权限管理
				authorized.GET("/authz/me", adminHandler.GetAuthzMe)
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.GET("/authz/admins", adminHandler.ListAuthzAdmins)
				authorized.POST("/authz/admins", adminHandler.CreateAuthzAdmin)
				authorized.PUT("/authz/admins/:id", adminHandler.UpdateAuthzAdmin)
				authorized.DELETE("/authz/admins/:id", adminHandler.DeleteAuthzAdmin)
				authorized.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})
				authorized.POST("/authz/roles", adminHandler.CreateAuthzRole)
				authorized.DELETE("/authz/roles/:role", adminHandler.DeleteAuthzRole)
				authorized.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
				authorized.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
				authorized.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
				authorized.GET("/authz/admins/:id/roles", adminHandler.GetAuthzAdminRoles)
				authorized.PUT("/authz/admins/:id/roles", adminHandler.SetAuthzAdminRoles)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		if item.Path == "/api/v1/admin/login" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	if segments[1] == "authz" {
		return "authz"
	}
	return segments[1]
}
