package config

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Email      EmailConfig      `mapstructure:"email"`
	Inference  InferenceConfig  `mapstructure:"inference"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Knowledge  KnowledgeConfig  `mapstructure:"knowledge"`
	References ReferencesConfig `mapstructure:"references"`
	Costs      CostsConfig      `mapstructure:"costs"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string        `mapstructure:"secret"`
	ExpireHours int           `mapstructure:"expire_hours"`
	ExpireTime  time.Duration `mapstructure:"-"`
}

// EmailConfig 邮件配置
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// InferenceConfig 推理服务配置（Ollama 兼容接口，端点由后台注册管理）
type InferenceConfig struct {
	TextModel              string `mapstructure:"text_model"`
	VisionModel            string `mapstructure:"vision_model"`
	ProbeTimeoutSeconds    int    `mapstructure:"probe_timeout_seconds"`
	GenerateTimeoutSeconds int    `mapstructure:"generate_timeout_seconds"`
}

// PipelineConfig 分析流水线配置
type PipelineConfig struct {
	FrameCount             int     `mapstructure:"frame_count"`
	DefaultDurationSeconds float64 `mapstructure:"default_duration_seconds"`
	FrameTimeoutSeconds    int     `mapstructure:"frame_timeout_seconds"`
	WorkerCount            int     `mapstructure:"worker_count"`
	PollIntervalSeconds    int     `mapstructure:"poll_interval_seconds"`
	DangerScoreCap         float64 `mapstructure:"danger_score_cap"`
	MetricsURL             string  `mapstructure:"metrics_url"` // 姿态测量服务地址，空表示不可用
	MetricsTimeoutSeconds  int     `mapstructure:"metrics_timeout_seconds"`
	MediaRoot              string  `mapstructure:"media_root"` // 本地媒体根目录，空表示只接受 HTTP 引用
}

// KnowledgeConfig 知识库检索配置
type KnowledgeConfig struct {
	Dir               string  `mapstructure:"dir"`
	MinChunkScore     float64 `mapstructure:"min_chunk_score"`
	MaxChunksPerFile  int     `mapstructure:"max_chunks_per_file"`
	MaxTotalChunks    int     `mapstructure:"max_total_chunks"`
	FallbackFileScan  int     `mapstructure:"fallback_file_scan"`
	FallbackMinChunks int     `mapstructure:"fallback_min_chunks"`
}

// ReferencesConfig 参考动作库配置
type ReferencesConfig struct {
	Dir       string `mapstructure:"dir"`
	MinFrames int    `mapstructure:"min_frames"`
}

// CostsConfig 视频提交扣费配置（按动作模式）
type CostsConfig struct {
	DefaultFP int            `mapstructure:"default_fp"`
	Patterns  map[string]int `mapstructure:"patterns"`
}

// CostFor 返回指定动作模式的提交费用
func (c *CostsConfig) CostFor(pattern string) int {
	if cost, ok := c.Patterns[strings.ToLower(pattern)]; ok {
		return cost
	}
	return c.DefaultFP
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig *Config
)

// LoadConfig 加载配置
// 优先级: 外部配置文件 > 嵌入的默认配置
// configPath: 可选的外部配置文件路径
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 首先加载嵌入的默认配置
	if err := v.ReadConfig(bytes.NewReader(DefaultConfigYAML)); err != nil {
		return nil, fmt.Errorf("读取内置配置失败: %w", err)
	}
	log.Println("已加载内置默认配置")

	// 2. 尝试加载外部配置文件（可选，用于覆盖默认配置）
	if configPath != "" {
		// 指定了配置文件路径
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			log.Printf("警告: 无法读取指定配置文件 %s: %v", configPath, err)
		} else {
			log.Printf("已合并外部配置文件: %s", configPath)
		}
	} else {
		// 尝试查找外部配置文件
		externalViper := viper.New()
		externalViper.SetConfigName("config")
		externalViper.SetConfigType("yaml")
		externalViper.AddConfigPath(".")
		externalViper.AddConfigPath("./config")
		externalViper.AddConfigPath("/etc/biomech")
		externalViper.AddConfigPath("$HOME/.biomech")

		if err := externalViper.ReadInConfig(); err == nil {
			// 找到外部配置文件，合并配置
			if err := v.MergeConfigMap(externalViper.AllSettings()); err != nil {
				log.Printf("警告: 合并外部配置失败: %v", err)
			} else {
				log.Printf("已合并外部配置文件: %s", externalViper.ConfigFileUsed())
			}
		}
	}

	// 3. 支持环境变量覆盖（可选）
	v.SetEnvPrefix("BIOMECH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 设置 JWT 过期时间
	if cfg.JWT.ExpireHours <= 0 {
		cfg.JWT.ExpireHours = 24
	}
	cfg.JWT.ExpireTime = time.Duration(cfg.JWT.ExpireHours) * time.Hour

	applyPipelineDefaults(&cfg)

	// 保存到全局变量
	GlobalConfig = &cfg

	return &cfg, nil
}

// applyPipelineDefaults 流水线相关阈值的兜底默认值
// 这些阈值是可调参数而非硬编码常量，配置缺失时退回默认取值
func applyPipelineDefaults(cfg *Config) {
	if cfg.Pipeline.FrameCount <= 0 {
		cfg.Pipeline.FrameCount = 6
	}
	if cfg.Pipeline.DefaultDurationSeconds <= 0 {
		cfg.Pipeline.DefaultDurationSeconds = 30
	}
	if cfg.Pipeline.FrameTimeoutSeconds <= 0 {
		cfg.Pipeline.FrameTimeoutSeconds = 15
	}
	if cfg.Pipeline.WorkerCount <= 0 {
		cfg.Pipeline.WorkerCount = 1
	}
	if cfg.Pipeline.PollIntervalSeconds <= 0 {
		cfg.Pipeline.PollIntervalSeconds = 5
	}
	if cfg.Pipeline.DangerScoreCap <= 0 {
		cfg.Pipeline.DangerScoreCap = 5.0
	}
	if cfg.Pipeline.MetricsTimeoutSeconds <= 0 {
		cfg.Pipeline.MetricsTimeoutSeconds = 60
	}
	if cfg.Inference.ProbeTimeoutSeconds <= 0 {
		cfg.Inference.ProbeTimeoutSeconds = 5
	}
	if cfg.Inference.GenerateTimeoutSeconds <= 0 {
		cfg.Inference.GenerateTimeoutSeconds = 180
	}
	if cfg.Knowledge.MinChunkScore <= 0 {
		cfg.Knowledge.MinChunkScore = 2
	}
	if cfg.Knowledge.MaxChunksPerFile <= 0 {
		cfg.Knowledge.MaxChunksPerFile = 2
	}
	if cfg.Knowledge.MaxTotalChunks <= 0 {
		cfg.Knowledge.MaxTotalChunks = 10
	}
	if cfg.Knowledge.FallbackFileScan <= 0 {
		cfg.Knowledge.FallbackFileScan = 20
	}
	if cfg.References.MinFrames <= 0 {
		cfg.References.MinFrames = 4
	}
	if cfg.Costs.DefaultFP <= 0 {
		cfg.Costs.DefaultFP = 25
	}
}

// MustLoadConfig 加载配置，失败则 panic
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("加载配置失败: %v", err))
	}
	return cfg
}

// GetConfig 获取全局配置，未初始化时返回 nil
func GetConfig() *Config {
	return GlobalConfig
}

// SafeErrorMessage 生产环境下只返回兜底文案，避免内部错误细节泄露给客户端
// debug 模式（或配置未初始化的开发环境）返回原始错误信息
func SafeErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if GlobalConfig == nil || GlobalConfig.Server.Mode == "debug" {
		return err.Error()
	}
	return fallback
}

// PrintConfig 打印当前配置（隐藏敏感信息）
func PrintConfig() {
	if GlobalConfig == nil {
		return
	}
	log.Printf("当前配置:")
	log.Printf("  服务器: %s (模式: %s)", GlobalConfig.Server.Port, GlobalConfig.Server.Mode)
	log.Printf("  数据库: %s@%s:%s/%s",
		GlobalConfig.Database.Username,
		GlobalConfig.Database.Host,
		GlobalConfig.Database.Port,
		GlobalConfig.Database.DBName)
	log.Printf("  推理模型: text=%s vision=%s", GlobalConfig.Inference.TextModel, GlobalConfig.Inference.VisionModel)
	log.Printf("  流水线: %d worker, 每视频 %d 帧", GlobalConfig.Pipeline.WorkerCount, GlobalConfig.Pipeline.FrameCount)
	log.Printf("  邮件服务: %v", GlobalConfig.Email.Enabled)
}
