package service

import (
	"fmt"
	"math"
)

// 分级引擎：把测得的生物力学指标映射到各标准的严重度区间，
// 并聚合为 0-10 的总评分。纯计算，无 IO。

// CriterionFinding 单项标准的分级结果
type CriterionFinding struct {
	Criterion   string   `json:"criterion"`
	Label       string   `json:"label"`
	Metric      string   `json:"metric"`
	Value       float64  `json:"value"`
	Unit        string   `json:"unit"`
	Level       Severity `json:"level"`
	Informative bool     `json:"informative"`    // 仅供参考，不计入总分
	Safety      bool     `json:"safety_critical"`
	Note        string   `json:"note,omitempty"`
	Topics      []string `json:"-"`
}

// ClassificationResult 一次分级的完整结果
type ClassificationResult struct {
	Pattern          string              `json:"pattern"`
	Score            float64             `json:"score"` // 0-10，一位小数
	ScoreCapped      bool                `json:"score_capped"`
	Findings         []CriterionFinding  `json:"findings"`
	Histogram        map[Severity]int    `json:"histogram"`
	DangerFlags      []string            `json:"danger_flags"`       // 计分标准中命中危险区间的标准名
	HasDanger        bool                `json:"has_danger"`         // 任一计分标准命中危险区间
	HasWarningSafety bool                `json:"has_warning_safety"` // 安全关键标准处于警告区间
	MissingMetrics   []string            `json:"missing_metrics"`    // 输入缺失的指标
	Constraint       EquipmentConstraint `json:"constraint"`
}

// Topics 汇总所有警告及以上级别发现的检索主题，顺序稳定去重
func (r *ClassificationResult) Topics() []string {
	seen := make(map[string]bool)
	var out []string
	for _, fd := range r.Findings {
		if fd.Level != SeverityWarning && fd.Level != SeverityDanger {
			continue
		}
		for _, t := range fd.Topics {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Classifier 分级引擎
type Classifier struct {
	dangerCap float64 // 安全关键标准命中危险区间时的总分上限
}

// NewClassifier 创建分级引擎，cap 为安全关键危险时的评分上限
func NewClassifier(dangerCap float64) *Classifier {
	if dangerCap <= 0 {
		dangerCap = 5.0
	}
	return &Classifier{dangerCap: dangerCap}
}

// bandFor 顺序匹配，首个命中的区间生效
func bandFor(c *Criterion, v float64) (Severity, bool) {
	for _, b := range c.Bands {
		if b.Contains(v) {
			return b.Level, true
		}
	}
	return "", false
}

// Classify 按模板对指标做分级并聚合评分
// metrics 缺失的标准记入 MissingMetrics 且不参与聚合
// 当装备限制约束动作幅度时，幅度依赖标准降级为仅供参考
func (cl *Classifier) Classify(tpl *MovementTemplate, metrics map[string]float64, constraint EquipmentConstraint) (*ClassificationResult, error) {
	if tpl == nil {
		return nil, fmt.Errorf("动作模板为空: %w", ErrValidation)
	}

	res := &ClassificationResult{
		Pattern:    tpl.Pattern,
		Histogram:  make(map[Severity]int),
		Constraint: constraint,
	}

	romInformative := constraint.LimitsROM()

	var weightSum, valueSum float64
	capHit := false

	for i := range tpl.Criteria {
		c := &tpl.Criteria[i]
		v, ok := metrics[c.Metric]
		if !ok {
			res.MissingMetrics = append(res.MissingMetrics, c.Metric)
			continue
		}

		level, matched := bandFor(c, v)
		if !matched {
			// 区间对值域构成完整划分，走到这里说明模板定义有误
			return nil, fmt.Errorf("标准 %s 的区间未覆盖值 %.2f", c.Name, v)
		}

		fd := CriterionFinding{
			Criterion:   c.Name,
			Label:       c.Label,
			Metric:      c.Metric,
			Value:       v,
			Unit:        c.Unit,
			Level:       level,
			Informative: romInformative && c.ROMDependent,
			Safety:      c.SafetyCritical,
			Note:        c.Note,
			Topics:      c.Topics,
		}
		res.Findings = append(res.Findings, fd)
		res.Histogram[level]++

		if fd.Informative {
			continue
		}

		w := 1.0
		if c.SafetyCritical {
			w = 2.0
		}
		weightSum += w
		valueSum += w * severityWeight[level]

		switch level {
		case SeverityDanger:
			res.DangerFlags = append(res.DangerFlags, c.Name)
			res.HasDanger = true
			if c.SafetyCritical {
				capHit = true
			}
		case SeverityWarning:
			if c.SafetyCritical {
				res.HasWarningSafety = true
			}
		}
	}

	if weightSum == 0 {
		return nil, fmt.Errorf("没有可计分的指标: %w", ErrValidation)
	}

	raw := valueSum / weightSum * 10
	if capHit && raw > cl.dangerCap {
		raw = cl.dangerCap
		res.ScoreCapped = true
	}
	res.Score = math.Round(raw*10) / 10

	return res, nil
}
