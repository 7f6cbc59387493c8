package database

import (
	"fmt"
	"log"

	"biomech/config"
	"biomech/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init 初始化数据库连接
func Init(cfg *config.Config) error {
	// 构建 MySQL DSN 连接字符串
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.Charset,
	)

	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	// 获取底层 *sql.DB 连接池配置
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(10)  // 最大空闲连接数
	sqlDB.SetMaxOpenConns(100) // 最大打开连接数

	// 自动迁移数据库表
	if err := DB.AutoMigrate(
		&models.User{},
		&models.Analysis{},
		&models.AnalysisVote{},
		&models.ReviewDecision{},
		&models.FitPointTransaction{},
		&models.AIModel{},
	); err != nil {
		return err
	}

	// 兼容历史数据：老版本没有 status 字段，默认设置为 active，避免升级后无法登录
	_ = DB.Model(&models.User{}).
		Where("status IS NULL OR status = ''").
		Update("status", models.UserStatusActive).Error

	// 初始化默认推理端点（仅当表为空时），默认指向本地 Ollama
	var endpointCount int64
	DB.Model(&models.AIModel{}).Count(&endpointCount)
	if endpointCount == 0 {
		_ = DB.Create(&models.AIModel{
			Name:      "本地 Ollama",
			BaseURL:   "http://localhost:11434",
			SortOrder: 0,
		}).Error
	}

	// 兼容历史数据：当所有端点的 sort_order 均为 0 且有多条时，按 id 赋 0,1,2,...
	var total, zeroCnt int64
	DB.Model(&models.AIModel{}).Count(&total)
	DB.Model(&models.AIModel{}).Where("sort_order = 0").Count(&zeroCnt)
	if total > 1 && zeroCnt == total {
		var endpoints []models.AIModel
		if err := DB.Order("id").Find(&endpoints).Error; err == nil {
			for i, m := range endpoints {
				_ = DB.Model(&m).Update("sort_order", i).Error
			}
		}
	}

	log.Println("数据库初始化成功")
	return nil
}

// GetDB 获取数据库连接
func GetDB() *gorm.DB {
	return DB
}
