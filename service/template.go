package service

import "sort"

// 动作模板：每个动作模式的有序评估标准定义。
// 进程启动时加载一次，作为不可变配置显式注入各组件。

// Severity 严重度等级
type Severity string

const (
	SeverityExcellent  Severity = "excellent"
	SeverityGood       Severity = "good"
	SeverityAcceptable Severity = "acceptable"
	SeverityWarning    Severity = "warning"
	SeverityDanger     Severity = "danger"
)

// SeverityLabels 严重度中文文案
var SeverityLabels = map[Severity]string{
	SeverityExcellent:  "优秀",
	SeverityGood:       "良好",
	SeverityAcceptable: "合格",
	SeverityWarning:    "警告",
	SeverityDanger:     "危险",
}

// AllSeverities 从最严重到最轻的固定顺序
func AllSeverities() []Severity {
	return []Severity{SeverityDanger, SeverityWarning, SeverityAcceptable, SeverityGood, SeverityExcellent}
}

// severityWeight 聚合评分时各等级的归一化值
var severityWeight = map[Severity]float64{
	SeverityExcellent:  1.0,
	SeverityGood:       1.0,
	SeverityAcceptable: 1.0,
	SeverityWarning:    0.6,
	SeverityDanger:     0.0,
}

// Band 严重度区间，半开区间 [Min, Max)，nil 表示无界
// 同一标准的区间连续且不重叠，对整个值域构成完整划分
type Band struct {
	Level Severity
	Min   *float64
	Max   *float64
}

// Contains 判断数值是否落入该区间
func (b Band) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v >= *b.Max {
		return false
	}
	return true
}

// Criterion 单项生物力学评估标准
type Criterion struct {
	Name           string   // 标准标识，如 knee_valgus
	Label          string   // 展示名称
	Metric         string   // 输入指标名
	Unit           string   // ° 或 cm
	Bands          []Band   // 按从最严重到最轻排列，首个命中生效
	SafetyCritical bool     // 安全关键：最差区间主导聚合评分
	ROMDependent   bool     // 幅度依赖：装备限制时降级为仅供参考
	Note           string
	Topics         []string // 关联的知识库检索主题
}

// WorstBand 该标准的最差区间等级
func (c *Criterion) WorstBand() Severity {
	worst := SeverityExcellent
	rank := map[Severity]int{SeverityExcellent: 4, SeverityGood: 3, SeverityAcceptable: 2, SeverityWarning: 1, SeverityDanger: 0}
	for _, b := range c.Bands {
		if rank[b.Level] < rank[worst] {
			worst = b.Level
		}
	}
	return worst
}

// EquipmentConstraint 装备/环境限制
type EquipmentConstraint string

const (
	ConstraintNone          EquipmentConstraint = "none"
	ConstraintSafetyBars    EquipmentConstraint = "safety_bars"
	ConstraintMachineGuided EquipmentConstraint = "machine_guided"
	ConstraintSpaceLimited  EquipmentConstraint = "space_limited"
	ConstraintPainLimited   EquipmentConstraint = "pain_limited"
	ConstraintRehab         EquipmentConstraint = "rehab"
)

// ConstraintLabels 限制类型文案
var ConstraintLabels = map[EquipmentConstraint]string{
	ConstraintNone:          "无",
	ConstraintSafetyBars:    "安全杠",
	ConstraintMachineGuided: "固定器械（史密斯机）",
	ConstraintSpaceLimited:  "空间受限",
	ConstraintPainLimited:   "疼痛限制幅度",
	ConstraintRehab:         "康复期",
}

// ValidConstraint 校验限制类型是否合法（空串视为 none）
func ValidConstraint(c string) bool {
	if c == "" {
		return true
	}
	_, ok := ConstraintLabels[EquipmentConstraint(c)]
	return ok
}

// LimitsROM 该限制是否在结构上约束动作幅度
func (c EquipmentConstraint) LimitsROM() bool {
	switch c {
	case ConstraintSafetyBars, ConstraintMachineGuided, ConstraintSpaceLimited, ConstraintPainLimited, ConstraintRehab:
		return true
	}
	return false
}

// MovementTemplate 动作模式模板
type MovementTemplate struct {
	Pattern  string      // 动作模式标识，如 squat
	Label    string      // 展示名称
	Criteria []Criterion // 有序标准列表
	Phases   []string    // 动作阶段
}

// CriterionByMetric 按输入指标名查找标准
func (t *MovementTemplate) CriterionByMetric(metric string) *Criterion {
	for i := range t.Criteria {
		if t.Criteria[i].Metric == metric {
			return &t.Criteria[i]
		}
	}
	return nil
}

// TemplateSet 所有内置动作模板
type TemplateSet struct {
	templates map[string]*MovementTemplate
}

// Get 取指定动作模式的模板，不存在返回 nil
func (s *TemplateSet) Get(pattern string) *MovementTemplate {
	return s.templates[pattern]
}

// Patterns 返回全部已知动作模式，按名称排序
func (s *TemplateSet) Patterns() []string {
	out := make([]string, 0, len(s.templates))
	for p := range s.templates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Has 是否包含指定动作模式
func (s *TemplateSet) Has(pattern string) bool {
	_, ok := s.templates[pattern]
	return ok
}

func f(v float64) *float64 { return &v }

// BuiltinTemplates 内置动作模板集
// 区间取值源自运动生物力学评估标准（深蹲/硬拉/卧推）
func BuiltinTemplates() *TemplateSet {
	squat := &MovementTemplate{
		Pattern: "squat",
		Label:   "深蹲",
		Phases:  []string{"eccentric_descent", "bottom_position", "concentric_ascent"},
		Criteria: []Criterion{
			{
				Name: "depth", Label: "下蹲深度", Metric: "hip_angle_at_bottom", Unit: "°",
				ROMDependent: true,
				Note:         "髋低于膝线约等于髋角 < 80°",
				Topics:       []string{"profundidade agachamento", "squat depth", "hip angle"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(120)},
					{Level: SeverityWarning, Min: f(110), Max: f(120)},
					{Level: SeverityAcceptable, Min: f(90), Max: f(110)},
					{Level: SeverityGood, Min: f(70), Max: f(90)},
					{Level: SeverityExcellent, Max: f(70)},
				},
			},
			{
				Name: "knee_valgus", Label: "膝关节外翻", Metric: "knee_medial_displacement_cm", Unit: "cm",
				SafetyCritical: true,
				Note:           "膝关节内移距离（正面投影）",
				Topics:         []string{"valgo dinâmico", "knee cave", "glúteo médio"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(6)},
					{Level: SeverityWarning, Min: f(3), Max: f(6)},
					{Level: SeverityAcceptable, Min: f(1), Max: f(3)},
					{Level: SeverityExcellent, Max: f(1)},
				},
			},
			{
				Name: "trunk_control", Label: "躯干控制", Metric: "trunk_inclination_degrees", Unit: "°",
				Note:   "躯干相对竖直方向的倾角",
				Topics: []string{"inclinação anterior tronco", "trunk lean", "core control"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(55)},
					{Level: SeverityWarning, Min: f(45), Max: f(55)},
					{Level: SeverityAcceptable, Max: f(45)},
				},
			},
			{
				Name: "ankle_mobility", Label: "踝关节活动度", Metric: "ankle_dorsiflexion_degrees", Unit: "°",
				ROMDependent: true,
				Note:         "踝背屈角度",
				Topics:       []string{"dorsiflexão tornozelo", "ankle mobility"},
				Bands: []Band{
					{Level: SeverityDanger, Max: f(20)},
					{Level: SeverityWarning, Min: f(20), Max: f(25)},
					{Level: SeverityAcceptable, Min: f(25), Max: f(30)},
					{Level: SeverityGood, Min: f(30), Max: f(35)},
					{Level: SeverityExcellent, Min: f(35)},
				},
			},
			{
				Name: "lumbar_control", Label: "腰椎控制", Metric: "lumbar_flexion_change_degrees", Unit: "°",
				SafetyCritical: true,
				Note:           "从起始到最低点的腰椎屈曲变化（butt wink）",
				Topics:         []string{"butt wink", "retroversão pélvica", "lumbar flexion"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(20)},
					{Level: SeverityWarning, Min: f(10), Max: f(20)},
					{Level: SeverityAcceptable, Max: f(10)},
				},
			},
			{
				Name: "asymmetry", Label: "两侧不对称", Metric: "bilateral_angle_difference", Unit: "°",
				Note:   "左右膝/髋角度差",
				Topics: []string{"assimetria bilateral", "muscle imbalance"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(10)},
					{Level: SeverityWarning, Min: f(5), Max: f(10)},
					{Level: SeverityAcceptable, Max: f(5)},
				},
			},
		},
	}

	deadlift := &MovementTemplate{
		Pattern: "deadlift",
		Label:   "硬拉",
		Phases:  []string{"setup", "pull", "lockout", "descent"},
		Criteria: []Criterion{
			{
				Name: "hip_hinge", Label: "髋关节铰链", Metric: "hip_angle_at_start", Unit: "°",
				ROMDependent: true,
				Note:         "起始位髋角，过高说明用背拉起",
				Topics:       []string{"hip hinge", "levantamento terra quadril"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(130)},
					{Level: SeverityWarning, Min: f(115), Max: f(130)},
					{Level: SeverityAcceptable, Min: f(95), Max: f(115)},
					{Level: SeverityGood, Min: f(80), Max: f(95)},
					{Level: SeverityExcellent, Max: f(80)},
				},
			},
			{
				Name: "lumbar_neutrality", Label: "腰椎中立位", Metric: "lumbar_flexion_change_degrees", Unit: "°",
				SafetyCritical: true,
				Note:           "拉起过程中的腰椎屈曲变化",
				Topics:         []string{"flexão lombar terra", "rounded back deadlift"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(15)},
					{Level: SeverityWarning, Min: f(8), Max: f(15)},
					{Level: SeverityAcceptable, Max: f(8)},
				},
			},
			{
				Name: "bar_path", Label: "杠铃轨迹", Metric: "bar_horizontal_drift_cm", Unit: "cm",
				Note:   "杠铃偏离垂直轨迹的水平位移",
				Topics: []string{"bar path deadlift", "trajetória da barra"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(10)},
					{Level: SeverityWarning, Min: f(5), Max: f(10)},
					{Level: SeverityAcceptable, Min: f(2), Max: f(5)},
					{Level: SeverityExcellent, Max: f(2)},
				},
			},
			{
				Name: "lockout", Label: "顶端锁定", Metric: "hip_extension_at_top", Unit: "°",
				ROMDependent: true,
				Note:         "顶端髋伸展角，过伸同样有风险",
				Topics:       []string{"lockout deadlift", "hiperextensão lombar"},
				Bands: []Band{
					{Level: SeverityWarning, Min: f(190)},
					{Level: SeverityExcellent, Min: f(170), Max: f(190)},
					{Level: SeverityAcceptable, Min: f(150), Max: f(170)},
					{Level: SeverityWarning, Max: f(150)},
				},
			},
		},
	}

	bench := &MovementTemplate{
		Pattern: "bench_press",
		Label:   "卧推",
		Phases:  []string{"descent", "bottom", "press"},
		Criteria: []Criterion{
			{
				Name: "elbow_flare", Label: "肘部外展", Metric: "elbow_abduction_degrees", Unit: "°",
				SafetyCritical: true,
				Note:           "肘部相对躯干的外展角，过大增加肩关节负荷",
				Topics:         []string{"elbow flare bench", "ombro supino"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(80)},
					{Level: SeverityWarning, Min: f(70), Max: f(80)},
					{Level: SeverityAcceptable, Min: f(45), Max: f(70)},
					{Level: SeverityExcellent, Max: f(45)},
				},
			},
			{
				Name: "bar_touch_point", Label: "触胸位置", Metric: "bar_touch_offset_cm", Unit: "cm",
				Note:   "触胸点相对乳线的偏移",
				Topics: []string{"bar touch point", "ponto de toque supino"},
				Bands: []Band{
					{Level: SeverityWarning, Min: f(8)},
					{Level: SeverityAcceptable, Min: f(4), Max: f(8)},
					{Level: SeverityExcellent, Max: f(4)},
				},
			},
			{
				Name: "wrist_stack", Label: "腕关节垂直", Metric: "wrist_extension_degrees", Unit: "°",
				Note:   "腕背伸角度，杠铃应压在掌根正上方",
				Topics: []string{"wrist position bench", "punho supino"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(45)},
					{Level: SeverityWarning, Min: f(30), Max: f(45)},
					{Level: SeverityAcceptable, Max: f(30)},
				},
			},
			{
				Name: "range_of_motion", Label: "推举幅度", Metric: "elbow_flexion_at_bottom", Unit: "°",
				ROMDependent: true,
				Note:         "底端肘屈角，衡量下放深度",
				Topics:       []string{"amplitude supino", "bench press ROM"},
				Bands: []Band{
					{Level: SeverityWarning, Max: f(70)},
					{Level: SeverityAcceptable, Min: f(70), Max: f(85)},
					{Level: SeverityExcellent, Min: f(85)},
				},
			},
		},
	}

	ohp := &MovementTemplate{
		Pattern: "overhead_press",
		Label:   "站姿推举",
		Phases:  []string{"setup", "press", "lockout", "descent"},
		Criteria: []Criterion{
			{
				Name: "lumbar_extension", Label: "腰椎过伸", Metric: "lumbar_extension_degrees", Unit: "°",
				SafetyCritical: true,
				Note:           "推举过程中的腰椎过伸代偿",
				Topics:         []string{"hiperextensão lombar press", "rib flare"},
				Bands: []Band{
					{Level: SeverityDanger, Min: f(20)},
					{Level: SeverityWarning, Min: f(10), Max: f(20)},
					{Level: SeverityAcceptable, Max: f(10)},
				},
			},
			{
				Name: "lockout_position", Label: "顶端锁定", Metric: "shoulder_flexion_at_top", Unit: "°",
				ROMDependent: true,
				Note:         "顶端肩屈角，杠铃应位于头顶正上方",
				Topics:       []string{"overhead lockout", "mobilidade ombro"},
				Bands: []Band{
					{Level: SeverityExcellent, Min: f(175)},
					{Level: SeverityAcceptable, Min: f(160), Max: f(175)},
					{Level: SeverityWarning, Min: f(145), Max: f(160)},
					{Level: SeverityDanger, Max: f(145)},
				},
			},
			{
				Name: "bar_path", Label: "杠铃轨迹", Metric: "bar_horizontal_drift_cm", Unit: "cm",
				Note:   "杠铃偏离垂直轨迹的水平位移",
				Topics: []string{"bar path press", "trajetória da barra"},
				Bands: []Band{
					{Level: SeverityWarning, Min: f(6)},
					{Level: SeverityAcceptable, Min: f(3), Max: f(6)},
					{Level: SeverityExcellent, Max: f(3)},
				},
			},
		},
	}

	return &TemplateSet{templates: map[string]*MovementTemplate{
		squat.Pattern:    squat,
		deadlift.Pattern: deadlift,
		bench.Pattern:    bench,
		ohp.Pattern:      ohp,
	}}
}
