package service

import (
	"context"
	"log"
	"time"

	"biomech/models"

	"gorm.io/gorm"
)

// 后台工作器：轮询待分析队列，用条件更新抢占任务后交给流水线
// 多实例部署时同一条分析只会被一个工作器抢到

// Worker 分析工作器
type Worker struct {
	db           *gorm.DB
	pipeline     *Pipeline
	pollInterval time.Duration
	count        int
}

// NewWorker 创建工作器
func NewWorker(db *gorm.DB, pipeline *Pipeline, count int, pollInterval time.Duration) *Worker {
	if count <= 0 {
		count = 1
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{db: db, pipeline: pipeline, pollInterval: pollInterval, count: count}
}

// Start 启动工作协程，ctx 取消后退出
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.count; i++ {
		go w.loop(ctx, i+1)
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	log.Printf("分析工作器 #%d 启动，轮询间隔 %s", id, w.pollInterval)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("分析工作器 #%d 退出", id)
			return
		case <-ticker.C:
			// 一次轮询连续处理到队列排空
			for {
				analysis, ok := w.claim()
				if !ok {
					break
				}
				if err := w.pipeline.Process(ctx, analysis); err != nil {
					log.Printf("工作器 #%d 处理失败 id=%d: %v", id, analysis.ID, err)
				}
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// claim 抢占最早的待分析任务，条件更新防止重复处理
func (w *Worker) claim() (*models.Analysis, bool) {
	var a models.Analysis
	if err := w.db.Where("status = ?", models.AnalysisStatusPendingAI).
		Order("created_at ASC").First(&a).Error; err != nil {
		return nil, false
	}

	res := w.db.Model(&models.Analysis{}).
		Where("id = ? AND status = ?", a.ID, models.AnalysisStatusPendingAI).
		Update("status", models.AnalysisStatusProcessing)
	if res.Error != nil {
		log.Printf("抢占任务失败 id=%d: %v", a.ID, res.Error)
		return nil, false
	}
	if res.RowsAffected == 0 {
		// 被其他工作器抢走
		return nil, false
	}

	a.Status = models.AnalysisStatusProcessing
	return &a, true
}
