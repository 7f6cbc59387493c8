package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"
)

// 报告合成器：把分级/比对结果与知识片段合成面向用户的评估报告
// 叙述生成失败时回退到确定性模板，永不报错

// AnalysisMethod 分析路径
type AnalysisMethod string

const (
	MethodClassification AnalysisMethod = "classification" // 姿态测量 + 分级引擎
	MethodComparative    AnalysisMethod = "comparative"    // 视觉比对
)

// Report 评估报告
type Report struct {
	Pattern            string           `json:"pattern"`
	PatternLabel       string           `json:"pattern_label"`
	Method             AnalysisMethod   `json:"method"`
	Score              float64          `json:"score"`
	Narrative          string           `json:"narrative"`
	NarrativeGenerated bool             `json:"narrative_generated"` // false 表示确定性回退文本
	Classification     *ClassificationResult `json:"classification,omitempty"`
	Match              *MatchResult     `json:"match,omitempty"`
	Knowledge          []KnowledgeChunk `json:"knowledge,omitempty"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// ReportInput 合成报告的输入
type ReportInput struct {
	Pattern         string
	PatternLabel    string
	UserDescription string
	Classification  *ClassificationResult
	Match           *MatchResult
	Knowledge       []KnowledgeChunk
}

// Synthesizer 报告合成器
type Synthesizer struct {
	inference InferenceClient
	textModel string
}

// NewSynthesizer 创建合成器，inference 为 nil 时只产出回退文本
func NewSynthesizer(inference InferenceClient, textModel string) *Synthesizer {
	return &Synthesizer{inference: inference, textModel: textModel}
}

// Synthesize 合成报告，任何内部失败都落到确定性回退，不向上返回错误
func (s *Synthesizer) Synthesize(ctx context.Context, in ReportInput) *Report {
	rpt := &Report{
		Pattern:        in.Pattern,
		PatternLabel:   in.PatternLabel,
		Classification: in.Classification,
		Match:          in.Match,
		Knowledge:      in.Knowledge,
		GeneratedAt:    time.Now(),
	}
	switch {
	case in.Classification != nil:
		rpt.Method = MethodClassification
		rpt.Score = in.Classification.Score
	case in.Match != nil:
		rpt.Method = MethodComparative
		rpt.Score = in.Match.Score
	}

	if s.inference != nil && s.textModel != "" {
		narrative, err := s.generateNarrative(ctx, in)
		if err == nil && strings.TrimSpace(narrative) != "" {
			rpt.Narrative = narrative
			rpt.NarrativeGenerated = true
			return rpt
		}
		if err != nil {
			log.Printf("报告叙述生成失败，使用回退模板: %v", err)
		}
	}

	rpt.Narrative = s.fallbackNarrative(in, rpt.Score)
	rpt.NarrativeGenerated = false
	return rpt
}

// truncateRunes 按字节上限截断，回退到字符边界避免截出半个多字节字符
func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (s *Synthesizer) generateNarrative(ctx context.Context, in ReportInput) (string, error) {
	var b strings.Builder
	b.WriteString("你是一名资深体能教练。根据以下动作评估数据，用中文写一份面向训练者的评估报告，")
	b.WriteString("包含：总体评价、主要问题（按严重程度排序）、针对性的纠正训练建议。语气专业且鼓励，不要编造数据之外的内容。\n\n")
	b.WriteString(s.describeFindings(in))

	if in.UserDescription != "" {
		fmt.Fprintf(&b, "\n训练者自述：%s\n", in.UserDescription)
	}
	if len(in.Knowledge) > 0 {
		b.WriteString("\n可引用的参考资料（引用时注明来源）：\n")
		for _, k := range in.Knowledge {
			fmt.Fprintf(&b, "- 【%s】%s\n", k.Source, truncateRunes(k.Text, 400))
		}
	}

	return s.inference.Generate(ctx, GenerateRequest{Model: s.textModel, Prompt: b.String()})
}

// describeFindings 结构化结果转成提示词片段
func (s *Synthesizer) describeFindings(in ReportInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "动作模式：%s\n", in.PatternLabel)

	if cr := in.Classification; cr != nil {
		fmt.Fprintf(&b, "评分：%.1f / 10", cr.Score)
		if cr.ScoreCapped {
			b.WriteString("（因安全关键问题已封顶）")
		}
		b.WriteString("\n")
		if cr.HasDanger {
			b.WriteString("警示：存在命中危险区间的标准。\n")
		}
		if cr.HasWarningSafety {
			b.WriteString("警示：有安全关键标准处于警告区间，需重点关注。\n")
		}
		b.WriteString("各项标准：\n")
		for _, fd := range cr.Findings {
			fmt.Fprintf(&b, "- %s：%.1f%s，评级「%s」", fd.Label, fd.Value, fd.Unit, SeverityLabels[fd.Level])
			if fd.Informative {
				b.WriteString("（受装备限制影响，仅供参考）")
			}
			if fd.Safety {
				b.WriteString("（安全关键）")
			}
			b.WriteString("\n")
		}
	}

	if mr := in.Match; mr != nil {
		fmt.Fprintf(&b, "评分：%.1f / 10（与标准动作相似度 %.1f%%，基于 %d 帧）\n", mr.Score, mr.GoldSimilarity, mr.FramesUsed)
		if len(mr.Deviations) > 0 {
			b.WriteString("检出的偏差模式：\n")
			for _, d := range mr.Deviations {
				fmt.Fprintf(&b, "- %s：%s，出现于 %.0f%% 的帧\n", d.Label, tierLabel(d.Tier), d.Frequency*100)
			}
		} else {
			b.WriteString("未检出明显偏差模式。\n")
		}
	}

	return b.String()
}

func tierLabel(t DeviationTier) string {
	switch t {
	case TierCritical:
		return "严重"
	case TierModerate:
		return "中等"
	default:
		return "轻微"
	}
}

// fallbackNarrative 确定性回退文本，完整保留结构化发现
func (s *Synthesizer) fallbackNarrative(in ReportInput, score float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "【%s 动作评估】总分 %.1f / 10\n\n", in.PatternLabel, score)
	b.WriteString(s.describeFindings(in))

	if len(in.Knowledge) > 0 {
		b.WriteString("\n参考建议：\n")
		for _, k := range in.Knowledge {
			text := truncateRunes(k.Text, 200)
			if text != k.Text {
				text += "……"
			}
			fmt.Fprintf(&b, "- %s（来源：%s）\n", text, k.Source)
		}
	}

	b.WriteString("\n本报告由系统自动生成，最终建议以教练人工审核后的版本为准。")
	return b.String()
}
