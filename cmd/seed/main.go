package main

import (
	"time"

	"github.com/orbisvoice-next/internal/config"
	"github.com/orbisvoice-next/internal/constants"
	"github.com/orbisvoice-next/internal/logger"
	"github.com/orbisvoice-next/internal/models"
	"github.com/orbisvoice-next/internal/service"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化奖励配置
	var existingSetting models.Setting
	if err := models.DB.Where("key = ?", constants.SettingKeyRewardConfig).First(&existingSetting).Error; err != nil {
		setting := models.Setting{
			Key:       constants.SettingKeyRewardConfig,
			ValueJSON: models.JSON(service.RewardSettingToMap(service.RewardDefaultSetting())),
		}
		if err := models.DB.Create(&setting).Error; err != nil {
			stdLog.Printf("Failed to create reward config: %v", err)
		} else {
			stdLog.Printf("Created reward config")
		}
	} else {
		stdLog.Printf("Reward config already exists")
	}

	// 添加演示用户
	hash, err := bcrypt.GenerateFromPassword([]byte("demo123456"), bcrypt.DefaultCost)
	if err != nil {
		stdLog.Fatalf("Failed to hash password: %v", err)
	}

	users := []models.User{
		{
			Email:        "maria@example.com",
			Username:     "maria",
			PasswordHash: string(hash),
			DisplayName:  "Maria",
			Status:       constants.UserStatusActive,
		},
		{
			Email:        "leo@example.com",
			Username:     "leo",
			PasswordHash: string(hash),
			DisplayName:  "Leo",
			Status:       constants.UserStatusActive,
		},
	}

	for i := range users {
		user := &users[i]
		var existing models.User
		if err := models.DB.Where("email = ?", user.Email).First(&existing).Error; err != nil {
			if err := models.DB.Create(user).Error; err != nil {
				stdLog.Printf("Failed to create user %s: %v", user.Email, err)
				continue
			}
			tenant := models.Tenant{
				Name:             user.Username,
				OwnerUserID:      user.ID,
				SubscriptionTier: constants.SubscriptionTierFree,
			}
			if err := models.DB.Create(&tenant).Error; err != nil {
				stdLog.Printf("Failed to create tenant for %s: %v", user.Email, err)
				continue
			}
			user.TenantID = &tenant.ID
			if err := models.DB.Save(user).Error; err != nil {
				stdLog.Printf("Failed to bind tenant for %s: %v", user.Email, err)
				continue
			}
			stdLog.Printf("Created user: %s", user.Email)
		} else {
			users[i] = existing
			stdLog.Printf("User already exists: %s", user.Email)
		}
	}

	// 给第一个用户开通推广伙伴身份（演示用）
	if users[0].ID != 0 {
		var existing models.Affiliate
		if err := models.DB.Where("user_id = ?", users[0].ID).First(&existing).Error; err != nil {
			now := time.Now()
			affiliate := models.Affiliate{
				UserID:     users[0].ID,
				Slug:       users[0].Username,
				Status:     constants.AffiliateStatusActive,
				ApprovedAt: &now,
			}
			if err := models.DB.Create(&affiliate).Error; err != nil {
				stdLog.Printf("Failed to create affiliate: %v", err)
			} else {
				if err := models.DB.Model(&models.User{}).Where("id = ?", users[0].ID).Update("is_affiliate", true).Error; err != nil {
					stdLog.Printf("Failed to flag affiliate user: %v", err)
				}
				stdLog.Printf("Created affiliate: %s", affiliate.Slug)
			}
		} else {
			stdLog.Printf("Affiliate already exists: %s", existing.Slug)
		}
	}

	stdLog.Printf("Seed finished")
}
