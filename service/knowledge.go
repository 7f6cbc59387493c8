package service

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// 知识检索：对本地知识库目录做轻量的关键词检索，
// 为报告合成器提供纠正性训练建议的参考段落。无外部索引，进程内完成。

// KnowledgeChunk 命中的知识片段
type KnowledgeChunk struct {
	Source string  `json:"source"` // 相对文件名
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// KnowledgeConfig 检索参数
type KnowledgeConfig struct {
	Dir               string  // 知识库目录，空表示禁用
	MinChunkScore     float64 // 低于该分的片段丢弃
	MaxChunksPerFile  int
	MaxTotalChunks    int
	FallbackFileScan  int // 回退扫描的文件数上限
	FallbackMinChunks int // 命中片段少于该数时触发回退扫描
}

// Retriever 本地知识检索器
type Retriever struct {
	cfg KnowledgeConfig
}

// NewRetriever 创建检索器
func NewRetriever(cfg KnowledgeConfig) *Retriever {
	if cfg.MinChunkScore <= 0 {
		cfg.MinChunkScore = 2
	}
	if cfg.MaxChunksPerFile <= 0 {
		cfg.MaxChunksPerFile = 2
	}
	if cfg.MaxTotalChunks <= 0 {
		cfg.MaxTotalChunks = 10
	}
	if cfg.FallbackFileScan <= 0 {
		cfg.FallbackFileScan = 20
	}
	if cfg.FallbackMinChunks <= 0 {
		cfg.FallbackMinChunks = 5
	}
	return &Retriever{cfg: cfg}
}

// deviationThesaurus 偏差主题词到同义检索词的静态映射，
// 让葡/英/中混排的知识库都能被同一主题命中
var deviationThesaurus = map[string][]string{
	"valgo":          {"valgo", "valgus", "valgismo", "colapso medial", "medial collapse", "knee cave", "joelho para dentro"},
	"valgus":         {"valgo", "valgus", "valgismo", "knee cave"},
	"varo":           {"varo", "varus", "varismo"},
	"anteriorização": {"anteriorização", "forward lean", "inclinação anterior", "trunk lean", "tronco inclinado"},
	"cifose":         {"cifose", "kyphosis", "cifótica", "dorso curvo", "rounded back"},
	"lordose":        {"lordose", "lordosis", "hiperlordose", "anterior pelvic tilt"},
	"joelho":         {"joelho", "knee", "patela", "patelar", "tibiofemoral", "ligamento cruzado"},
	"knee":           {"joelho", "knee", "patela"},
	"quadril":        {"quadril", "hip", "coxofemoral", "glúteo", "gluteus", "abdutores"},
	"hip":            {"quadril", "hip", "glúteo"},
	"coluna":         {"coluna", "spine", "vertebral", "lombar", "lumbar", "torácica", "thoracic"},
	"lumbar":         {"lombar", "lumbar", "coluna"},
	"glúteo":         {"glúteo", "gluteus", "glute", "glúteo médio", "glute medius"},
	"tornozelo":      {"tornozelo", "ankle", "dorsiflexão", "dorsiflexion"},
	"ankle":          {"tornozelo", "ankle", "dorsiflexão"},
	"alinhamento":    {"alinhamento", "alignment", "postura", "posture"},
}

// thesaurusKeys 固定遍历顺序，保证展开结果可复现
var thesaurusKeys = func() []string {
	keys := make([]string, 0, len(deviationThesaurus))
	for k := range deviationThesaurus {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

// expandTopics 主题词展开：原词、长度大于3的分词、同义词表命中项，按首次出现去重
func expandTopics(topics []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	for _, topic := range topics {
		lower := strings.ToLower(topic)
		add(lower)
		for _, word := range strings.Fields(lower) {
			if len(word) > 3 {
				add(word)
			}
		}
		for _, key := range thesaurusKeys {
			if strings.Contains(lower, key) {
				for _, syn := range deviationThesaurus[key] {
					add(syn)
				}
			}
		}
	}
	return out
}

// correctiveVocab 纠正性训练词汇，命中任意一个的片段加分
var correctiveVocab = []string{
	"corrigir", "correção", "exercício", "progressão", "regressão",
	"mobilidade", "estabilidade", "ativação", "fortalecimento", "alongamento",
	"correction", "corrective", "drill", "progression", "mobility", "stability",
	"纠正", "训练", "拉伸", "激活", "稳定",
}

// termWeight 长词区分度更高，权重加倍
func termWeight(term string) float64 {
	if len(term) > 5 {
		return 2
	}
	return 1
}

// scoreChunk 关键词出现次数加权计分，含纠正性词汇奖励
func (r *Retriever) scoreChunk(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		score += float64(strings.Count(lower, t)) * termWeight(t)
	}
	if score > 0 {
		for _, cv := range correctiveVocab {
			if strings.Contains(lower, cv) {
				score += 3
				break
			}
		}
	}
	return score
}

// splitChunks 按空行切段，跳过过短的段
func splitChunks(content string) []string {
	parts := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 40 {
			out = append(out, p)
		}
	}
	return out
}

// partitionFiles 按检索词匹配文件名，返回命中文件与其余文件，排序稳定
func (r *Retriever) partitionFiles(terms []string) (matched, rest []string, err error) {
	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		return nil, nil, err
	}

	var all []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".txt") {
			all = append(all, name)
		}
	}
	sort.Strings(all)

	for _, name := range all {
		lower := strings.ToLower(name)
		hit := false
		for _, t := range terms {
			if len(t) > 3 && strings.Contains(lower, t) {
				hit = true
				break
			}
		}
		if hit {
			matched = append(matched, name)
		} else {
			rest = append(rest, name)
		}
	}
	return matched, rest, nil
}

// scanFile 读取单个文件并返回计分达标的片段，按分数降序截取 perFileMax 条
func (r *Retriever) scanFile(name string, terms []string, perFileMax int) []KnowledgeChunk {
	content, err := os.ReadFile(filepath.Join(r.cfg.Dir, name))
	if err != nil {
		return nil
	}
	var fileChunks []KnowledgeChunk
	for _, text := range splitChunks(string(content)) {
		s := r.scoreChunk(text, terms)
		if s > r.cfg.MinChunkScore {
			fileChunks = append(fileChunks, KnowledgeChunk{Source: name, Text: text, Score: s})
		}
	}
	sort.SliceStable(fileChunks, func(i, j int) bool { return fileChunks[i].Score > fileChunks[j].Score })
	if len(fileChunks) > perFileMax {
		fileChunks = fileChunks[:perFileMax]
	}
	return fileChunks
}

// Retrieve 按主题词检索知识片段
// 结果按分数降序、同分按来源与出现顺序稳定排列；知识库未配置或为空时返回空切片不报错
func (r *Retriever) Retrieve(topics []string) ([]KnowledgeChunk, error) {
	if r.cfg.Dir == "" || len(topics) == 0 {
		return nil, nil
	}
	if _, err := os.Stat(r.cfg.Dir); os.IsNotExist(err) {
		return nil, nil
	}

	terms := expandTopics(topics)
	matched, rest, err := r.partitionFiles(terms)
	if err != nil {
		return nil, err
	}

	var chunks []KnowledgeChunk
	for _, name := range matched {
		chunks = append(chunks, r.scanFile(name, terms, r.cfg.MaxChunksPerFile)...)
	}

	// 命中不足时回退扫描其余文件，每个文件只取最高分的一段
	if len(chunks) < r.cfg.FallbackMinChunks {
		if len(rest) > r.cfg.FallbackFileScan {
			rest = rest[:r.cfg.FallbackFileScan]
		}
		for _, name := range rest {
			chunks = append(chunks, r.scanFile(name, terms, 1)...)
			if len(chunks) >= r.cfg.MaxTotalChunks*2 {
				break
			}
		}
	}

	// 按片段前 100 字去重，避免不同文件收录同一段落
	seen := make(map[string]bool)
	var deduped []KnowledgeChunk
	for _, c := range chunks {
		key := c.Text
		if len(key) > 100 {
			key = key[:100]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, c)
	}

	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Score > deduped[j].Score })
	if len(deduped) > r.cfg.MaxTotalChunks {
		deduped = deduped[:r.cfg.MaxTotalChunks]
	}
	return deduped, nil
}
