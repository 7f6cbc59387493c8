package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// 对比匹配器：无姿态测量数据时的视觉路径
// 用视觉模型把用户帧与金标准帧、偏差模式帧逐一比对，
// 参考库或视觉模型不可用时直接失败，不做降级

// DeviationTier 偏差严重度档位
type DeviationTier string

const (
	TierCritical DeviationTier = "critical"
	TierModerate DeviationTier = "moderate"
	TierMild     DeviationTier = "mild"
)

// deviationDetectThreshold 单帧相似度达到该值视为该帧出现此偏差
const deviationDetectThreshold = 50.0

// DeviationFinding 检出的偏差模式
type DeviationFinding struct {
	Key           string        `json:"key"`
	Label         string        `json:"label"`
	Tier          DeviationTier `json:"tier"`
	Frequency     float64       `json:"frequency"`      // 出现该偏差的帧占比，0-1
	AvgSimilarity float64       `json:"avg_similarity"` // 0-100
	Topics        []string      `json:"-"`
}

// ReferencesUsed 本次比对实际使用的参考集，供下游衡量结论可信度
type ReferencesUsed struct {
	GoldFrames    int      `json:"gold_frames"`    // 金标准参考帧数
	DeviationSets []string `json:"deviation_sets"` // 参与扫描的偏差模式，字典序
}

// MatchResult 视觉比对结果
type MatchResult struct {
	Pattern        string             `json:"pattern"`
	Score          float64            `json:"score"` // 0-10，一位小数
	GoldSimilarity float64            `json:"gold_similarity"`
	Deviations     []DeviationFinding `json:"deviations"`
	FramesUsed     int                `json:"frames_used"`
	ReferencesUsed ReferencesUsed     `json:"references_used"`
}

// Topics 汇总检出偏差的检索主题
func (r *MatchResult) Topics() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.Deviations {
		for _, t := range d.Topics {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// Matcher 视觉对比匹配器
type Matcher struct {
	library     *ReferenceLibrary
	inference   InferenceClient
	visionModel string
}

// NewMatcher 创建匹配器
func NewMatcher(library *ReferenceLibrary, inference InferenceClient, visionModel string) *Matcher {
	return &Matcher{library: library, inference: inference, visionModel: visionModel}
}

var numberPattern = regexp.MustCompile(`\d+(\.\d+)?`)

// parseSimilarity 从模型回复中取首个数字作为相似度，越界夹取到 0-100
func parseSimilarity(text string) (float64, error) {
	m := numberPattern.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("回复中没有数字: %q", strings.TrimSpace(text))
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, err
	}
	return math.Max(0, math.Min(100, v)), nil
}

func (m *Matcher) similarity(ctx context.Context, frame []byte, refs []string, subject string) (float64, error) {
	refImages, err := loadImageFiles(refs)
	if err != nil {
		return 0, err
	}
	images := append([][]byte{frame}, refImages...)
	prompt := fmt.Sprintf(
		"第一张图是训练者的动作帧，其余是%s的参考帧。评估第一张图与参考帧在动作形态上的相似程度，只回复一个 0 到 100 的整数，不要任何解释。",
		subject)
	resp, err := m.inference.Generate(ctx, GenerateRequest{Model: m.visionModel, Prompt: prompt, Images: images})
	if err != nil {
		return 0, err
	}
	return parseSimilarity(resp)
}

func loadImageFiles(paths []string) ([][]byte, error) {
	return LoadFrameImages(framesFromPaths(paths))
}

func framesFromPaths(paths []string) []SampledFrame {
	out := make([]SampledFrame, 0, len(paths))
	for i, p := range paths {
		out = append(out, SampledFrame{Index: i + 1, Path: p})
	}
	return out
}

// tierFor 按出现频率定档：六成以上帧为严重，三成以上为中等，其余轻微
func tierFor(frequency float64) DeviationTier {
	switch {
	case frequency >= 0.6:
		return TierCritical
	case frequency >= 0.3:
		return TierModerate
	default:
		return TierMild
	}
}

// Match 对采样帧做视觉比对评分
// 前置条件不满足（参考库缺失、视觉模型未加载）时返回错误，调用方据此置为失败状态
func (m *Matcher) Match(ctx context.Context, pattern string, frames []SampledFrame) (*MatchResult, error) {
	refs, err := m.library.Load(pattern)
	if err != nil {
		return nil, err
	}

	ok, err := m.inference.HasModel(ctx, m.visionModel)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: 视觉模型 %s 未加载", ErrInferenceUnavailable, m.visionModel)
	}

	images, err := LoadFrameImages(frames)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("没有可比对的帧: %w", ErrValidation)
	}

	// 逐帧对金标准打分
	var goldSum float64
	goldCount := 0
	for i, img := range images {
		sim, err := m.similarity(ctx, img, refs.GoldFrames, "标准动作")
		if err != nil {
			log.Printf("金标准比对失败 帧%d: %v", i+1, err)
			continue
		}
		goldSum += sim
		goldCount++
	}
	if goldCount == 0 {
		return nil, fmt.Errorf("%w: 所有帧的金标准比对均失败", ErrInferenceUnavailable)
	}
	goldAvg := goldSum / float64(goldCount)

	// 逐偏差模式统计出现频率
	var deviations []DeviationFinding
	var penaltySum float64
	for key, devFrames := range refs.Deviations {
		var simSum float64
		hit := 0
		scored := 0
		for i, img := range images {
			sim, err := m.similarity(ctx, img, devFrames, "「"+refs.DeviationMeta(key).Label+"」偏差模式")
			if err != nil {
				log.Printf("偏差比对失败 %s 帧%d: %v", key, i+1, err)
				continue
			}
			scored++
			simSum += sim
			if sim >= deviationDetectThreshold {
				hit++
			}
		}
		if scored == 0 || hit == 0 {
			continue
		}
		avg := simSum / float64(scored)
		freq := float64(hit) / float64(scored)
		info := refs.DeviationMeta(key)
		deviations = append(deviations, DeviationFinding{
			Key:           key,
			Label:         info.Label,
			Tier:          tierFor(freq),
			Frequency:     math.Round(freq*100) / 100,
			AvgSimilarity: math.Round(avg*10) / 10,
			Topics:        info.Topics,
		})
		penaltySum += avg
	}

	// 金标准相似度折算为 0-10 基础分，检出偏差按相似度总和扣分
	raw := goldAvg/100*10 - penaltySum/200*4
	raw = math.Max(0, math.Min(10, raw))

	sortDeviations(deviations)

	scanned := make([]string, 0, len(refs.Deviations))
	for key := range refs.Deviations {
		scanned = append(scanned, key)
	}
	sort.Strings(scanned)

	return &MatchResult{
		Pattern:        pattern,
		Score:          math.Round(raw*10) / 10,
		GoldSimilarity: math.Round(goldAvg*10) / 10,
		Deviations:     deviations,
		FramesUsed:     len(images),
		ReferencesUsed: ReferencesUsed{
			GoldFrames:    len(refs.GoldFrames),
			DeviationSets: scanned,
		},
	}, nil
}

// sortDeviations 按档位再按频率降序，同档同频按 key 排序保证输出稳定
func sortDeviations(devs []DeviationFinding) {
	rank := map[DeviationTier]int{TierCritical: 0, TierModerate: 1, TierMild: 2}
	sort.SliceStable(devs, func(i, j int) bool {
		if rank[devs[i].Tier] != rank[devs[j].Tier] {
			return rank[devs[i].Tier] < rank[devs[j].Tier]
		}
		if devs[i].Frequency != devs[j].Frequency {
			return devs[i].Frequency > devs[j].Frequency
		}
		return devs[i].Key < devs[j].Key
	})
}
