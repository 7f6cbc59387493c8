package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// 参考库：按动作模式组织的金标准帧与常见偏差模式帧
// 目录结构：
//   <dir>/<pattern>/gold/*.jpg          金标准执行帧
//   <dir>/<pattern>/deviations/<key>/   单个偏差模式的参考帧
//   <dir>/<pattern>/meta.json           可选，偏差文案与检索主题

// DeviationInfo 偏差模式的元信息
type DeviationInfo struct {
	Key    string   `json:"key"`
	Label  string   `json:"label"`
	Topics []string `json:"topics"`
}

// ReferenceSet 某个动作模式的完整参考集
type ReferenceSet struct {
	Pattern    string
	GoldFrames []string                 // 金标准帧文件路径，排序稳定
	Deviations map[string][]string      // 偏差 key -> 参考帧路径
	Meta       map[string]DeviationInfo // 偏差 key -> 元信息
}

// DeviationMeta 取偏差元信息，meta.json 缺失时用 key 兜底
func (rs *ReferenceSet) DeviationMeta(key string) DeviationInfo {
	if info, ok := rs.Meta[key]; ok {
		return info
	}
	return DeviationInfo{Key: key, Label: strings.ReplaceAll(key, "_", " ")}
}

type referenceMeta struct {
	Deviations []DeviationInfo `json:"deviations"`
}

// ReferenceLibrary 文件系统参考库
type ReferenceLibrary struct {
	dir       string
	minFrames int
}

// NewReferenceLibrary 创建参考库，dir 为空表示未配置
func NewReferenceLibrary(dir string, minFrames int) *ReferenceLibrary {
	if minFrames <= 0 {
		minFrames = 4
	}
	return &ReferenceLibrary{dir: dir, minFrames: minFrames}
}

func listImages(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") || strings.HasSuffix(name, ".png") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

// Available 参考库对该动作模式是否可用（金标准帧数达到下限）
func (l *ReferenceLibrary) Available(pattern string) bool {
	if l.dir == "" {
		return false
	}
	return len(listImages(filepath.Join(l.dir, pattern, "gold"))) >= l.minFrames
}

// Load 加载动作模式的参考集
// 金标准帧不足下限时返回 ErrReferencesUnavailable，视觉比对路径据此拒绝降级
func (l *ReferenceLibrary) Load(pattern string) (*ReferenceSet, error) {
	if l.dir == "" {
		return nil, fmt.Errorf("%w: 参考库未配置", ErrReferencesUnavailable)
	}
	base := filepath.Join(l.dir, pattern)

	gold := listImages(filepath.Join(base, "gold"))
	if len(gold) < l.minFrames {
		return nil, fmt.Errorf("%w: %s 金标准帧 %d 张，低于下限 %d", ErrReferencesUnavailable, pattern, len(gold), l.minFrames)
	}

	rs := &ReferenceSet{
		Pattern:    pattern,
		GoldFrames: gold,
		Deviations: make(map[string][]string),
		Meta:       make(map[string]DeviationInfo),
	}

	devDir := filepath.Join(base, "deviations")
	if entries, err := os.ReadDir(devDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			frames := listImages(filepath.Join(devDir, e.Name()))
			if len(frames) > 0 {
				rs.Deviations[e.Name()] = frames
			}
		}
	}

	if raw, err := os.ReadFile(filepath.Join(base, "meta.json")); err == nil {
		var meta referenceMeta
		if err := json.Unmarshal(raw, &meta); err == nil {
			for _, d := range meta.Deviations {
				rs.Meta[d.Key] = d
			}
		}
	}

	return rs, nil
}
