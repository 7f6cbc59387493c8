package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"biomech/config"
	"biomech/database"
	"biomech/middleware"
	"biomech/router"
	"biomech/service"
)

// @title 动作分析系统 API
// @version 1.0
// @description 基于视频的力量训练动作评估系统 API，支持付费提交、AI 分析与教练人工审核
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var (
	configFile  string
	port        string
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "外部配置文件路径（可选）")
	flag.StringVar(&configFile, "c", "", "外部配置文件路径（简写）")
	flag.StringVar(&port, "port", "", "监听端口，如: 8080 或 :8080")
	flag.StringVar(&port, "p", "", "监听端口（简写）")
	flag.BoolVar(&showVersion, "version", false, "显示版本信息")
	flag.BoolVar(&showVersion, "v", false, "显示版本信息（简写）")
}

func main() {
	flag.Parse()

	if showVersion {
		log.Println("动作分析系统 v1.0.0")
		return
	}

	// 加载配置（内置配置 + 可选的外部配置覆盖）
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 命令行参数覆盖端口配置
	if port != "" {
		// 自动添加冒号前缀
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Server.Port = port
		log.Printf("命令行指定端口: %s", port)
	}

	// 打印配置信息
	config.PrintConfig()

	// 初始化数据库
	if err := database.Init(cfg); err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}

	// 初始化 JWT
	middleware.InitJWT(cfg)

	// 组装业务服务
	templates := service.BuiltinTemplates()
	gate := service.NewGate(database.DB, &cfg.Costs)
	emailService := service.NewEmailService(&cfg.Email)
	review := service.NewReviewService(database.DB, emailService)
	registry := service.NewEndpointRegistry(database.DB,
		time.Duration(cfg.Inference.ProbeTimeoutSeconds)*time.Second,
		time.Duration(cfg.Inference.GenerateTimeoutSeconds)*time.Second)

	sampler := service.NewFrameSampler(service.SamplerConfig{
		FrameCount:      cfg.Pipeline.FrameCount,
		DefaultDuration: cfg.Pipeline.DefaultDurationSeconds,
		FrameTimeout:    time.Duration(cfg.Pipeline.FrameTimeoutSeconds) * time.Second,
	}, nil)

	var metrics service.MetricsProvider
	if cfg.Pipeline.MetricsURL != "" {
		metrics = service.NewHTTPMetricsProvider(cfg.Pipeline.MetricsURL,
			time.Duration(cfg.Pipeline.MetricsTimeoutSeconds)*time.Second)
	}

	pipeline := service.NewPipeline(service.PipelineDeps{
		DB:      database.DB,
		Store:   service.NewLocalMediaStore(cfg.Pipeline.MediaRoot),
		Sampler: sampler,
		Metrics: metrics,
		Templates: templates,
		Classify:  service.NewClassifier(cfg.Pipeline.DangerScoreCap),
		Library:   service.NewReferenceLibrary(cfg.References.Dir, cfg.References.MinFrames),
		Registry:  registry,
		Retriever: service.NewRetriever(service.KnowledgeConfig{
			Dir:               cfg.Knowledge.Dir,
			MinChunkScore:     cfg.Knowledge.MinChunkScore,
			MaxChunksPerFile:  cfg.Knowledge.MaxChunksPerFile,
			MaxTotalChunks:    cfg.Knowledge.MaxTotalChunks,
			FallbackFileScan:  cfg.Knowledge.FallbackFileScan,
			FallbackMinChunks: cfg.Knowledge.FallbackMinChunks,
		}),
		Gate:        gate,
		TextModel:   cfg.Inference.TextModel,
		VisionModel: cfg.Inference.VisionModel,
	})

	// 后台分析工作器，随进程退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	worker := service.NewWorker(database.DB, pipeline,
		cfg.Pipeline.WorkerCount,
		time.Duration(cfg.Pipeline.PollIntervalSeconds)*time.Second)
	worker.Start(ctx)

	// 设置路由
	r := router.SetupRouter(cfg, router.Deps{
		Gate:      gate,
		Review:    review,
		Templates: templates,
	})

	// 启动服务器
	log.Printf("==========================================")
	log.Printf("  🏋️ 动作分析系统已启动")
	log.Printf("==========================================")
	log.Printf("  Swagger:  http://localhost%s/swagger/index.html", cfg.Server.Port)
	log.Printf("  API接口:  http://localhost%s/api/v1/", cfg.Server.Port)
	log.Printf("  后台接口: http://localhost%s/admin/", cfg.Server.Port)
	log.Printf("==========================================")

	if err := r.Run(cfg.Server.Port); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}
