package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"biomech/models"

	"gorm.io/gorm"
)

// 分析流水线：单条分析从取媒体到落库的完整处理
// 路径选择：姿态测量服务可用走分级引擎，否则走视觉比对，两条路都不通则失败

// Pipeline 分析流水线
type Pipeline struct {
	db        *gorm.DB
	store     MediaStore
	sampler   *FrameSampler
	metrics   MetricsProvider
	templates *TemplateSet
	classify  *Classifier
	library   *ReferenceLibrary
	registry  *EndpointRegistry
	retriever *Retriever
	gate      *Gate

	textModel   string
	visionModel string
}

// PipelineDeps 流水线依赖
type PipelineDeps struct {
	DB        *gorm.DB
	Store     MediaStore
	Sampler   *FrameSampler
	Metrics   MetricsProvider
	Templates *TemplateSet
	Classify  *Classifier
	Library   *ReferenceLibrary
	Registry  *EndpointRegistry
	Retriever *Retriever
	Gate      *Gate

	TextModel   string
	VisionModel string
}

// NewPipeline 创建流水线
func NewPipeline(d PipelineDeps) *Pipeline {
	return &Pipeline{
		db:          d.DB,
		store:       d.Store,
		sampler:     d.Sampler,
		metrics:     d.Metrics,
		templates:   d.Templates,
		classify:    d.Classify,
		library:     d.Library,
		registry:    d.Registry,
		retriever:   d.Retriever,
		gate:        d.Gate,
		textModel:   d.TextModel,
		visionModel: d.VisionModel,
	}
}

// Process 处理一条处于 processing 状态的分析
// 成功置 ai_analyzed，失败置 error 并退还积分
func (p *Pipeline) Process(ctx context.Context, analysis *models.Analysis) error {
	rpt, result, method, framesUsed, err := p.run(ctx, analysis)
	if err != nil {
		p.fail(analysis, err)
		return err
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		p.fail(analysis, fmt.Errorf("序列化分析结果失败: %w", err))
		return err
	}
	rptJSON, err := json.Marshal(rpt)
	if err != nil {
		p.fail(analysis, fmt.Errorf("序列化报告失败: %w", err))
		return err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":         models.AnalysisStatusAIAnalyzed,
		"ai_result":      string(resultJSON),
		"ai_report":      string(rptJSON),
		"score":          rpt.Score,
		"method":         string(method),
		"frames_used":    framesUsed,
		"ai_analyzed_at": now,
		"error_message":  "",
	}
	if err := p.db.Model(&models.Analysis{}).Where("id = ?", analysis.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("保存分析结果失败: %w", err)
	}
	log.Printf("分析完成 id=%d pattern=%s method=%s score=%.1f frames=%d",
		analysis.ID, analysis.MovementPattern, method, rpt.Score, framesUsed)
	return nil
}

func (p *Pipeline) run(ctx context.Context, analysis *models.Analysis) (*Report, interface{}, AnalysisMethod, int, error) {
	tpl := p.templates.Get(analysis.MovementPattern)
	if tpl == nil {
		return nil, nil, "", 0, fmt.Errorf("未知动作模式 %q: %w", analysis.MovementPattern, ErrValidation)
	}

	videoPath, mediaCleanup, err := p.store.Resolve(ctx, analysis.MediaRef)
	if err != nil {
		return nil, nil, "", 0, err
	}
	defer mediaCleanup()

	frames, framesCleanup, err := p.sampler.Sample(ctx, videoPath)
	if err != nil {
		return nil, nil, "", 0, err
	}
	defer framesCleanup()

	var (
		classification *ClassificationResult
		match          *MatchResult
		topics         []string
		method         AnalysisMethod
		result         interface{}
	)

	if p.metrics != nil && p.metrics.Available() {
		metrics, merr := p.metrics.Measure(ctx, analysis.MovementPattern, frames)
		if merr == nil {
			classification, err = p.classify.Classify(tpl, metrics, EquipmentConstraint(analysis.EquipmentConstraint))
			if err != nil {
				return nil, nil, "", 0, err
			}
			topics = classification.Topics()
			method = MethodClassification
			result = classification
		} else {
			log.Printf("姿态测量失败，切换视觉比对 id=%d: %v", analysis.ID, merr)
		}
	}

	if classification == nil {
		client, cerr := p.registry.ActiveClient()
		if cerr != nil {
			return nil, nil, "", 0, cerr
		}
		matcher := NewMatcher(p.library, client, p.visionModel)
		match, err = matcher.Match(ctx, analysis.MovementPattern, frames)
		if err != nil {
			return nil, nil, "", 0, err
		}
		topics = match.Topics()
		method = MethodComparative
		result = match
	}

	chunks, kerr := p.retriever.Retrieve(topics)
	if kerr != nil {
		log.Printf("知识检索失败 id=%d: %v", analysis.ID, kerr)
	}

	var synth *Synthesizer
	if client, cerr := p.registry.ActiveClient(); cerr == nil {
		synth = NewSynthesizer(client, p.textModel)
	} else {
		synth = NewSynthesizer(nil, "")
	}

	rpt := synth.Synthesize(ctx, ReportInput{
		Pattern:         analysis.MovementPattern,
		PatternLabel:    tpl.Label,
		UserDescription: analysis.UserDescription,
		Classification:  classification,
		Match:           match,
		Knowledge:       chunks,
	})

	return rpt, result, method, len(frames), nil
}

// fail 标记分析失败并退款
func (p *Pipeline) fail(analysis *models.Analysis, cause error) {
	log.Printf("分析失败 id=%d: %v", analysis.ID, cause)
	updates := map[string]interface{}{
		"status":        models.AnalysisStatusError,
		"error_message": cause.Error(),
	}
	if err := p.db.Model(&models.Analysis{}).Where("id = ?", analysis.ID).Updates(updates).Error; err != nil {
		log.Printf("标记失败状态出错 id=%d: %v", analysis.ID, err)
		return
	}
	if p.gate != nil {
		if err := p.gate.Refund(analysis); err != nil {
			log.Printf("退款失败 id=%d: %v", analysis.ID, err)
		}
	}
}
