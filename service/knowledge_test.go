package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKnowledgeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestTermWeight(t *testing.T) {
	assert.Equal(t, 1.0, termWeight("knee"))
	assert.Equal(t, 2.0, termWeight("valgus"))
}

func TestScoreChunk(t *testing.T) {
	r := NewRetriever(KnowledgeConfig{Dir: "x"})

	// "valgus" 出现两次，长词权重2，命中纠正词汇 "mobilidade" 加3
	text := "O valgus dinâmico aparece quando falta mobilidade. Valgus é comum."
	score := r.scoreChunk(text, []string{"valgus"})
	assert.Equal(t, 7.0, score)

	// 无命中不给纠正词汇奖励
	assert.Equal(t, 0.0, r.scoreChunk("texto sem relação com mobilidade", []string{"valgus"}))
}

func TestSplitChunks(t *testing.T) {
	content := "curto\n\n" +
		strings.Repeat("a", 50) + "\n\n" +
		strings.Repeat("b", 45) + "\r\n\r\n" +
		"x"
	chunks := splitChunks(content)
	require.Len(t, chunks, 2, "过短的段被跳过")
	assert.Equal(t, strings.Repeat("a", 50), chunks[0])
}

func TestRetriever_Retrieve(t *testing.T) {
	dir := t.TempDir()
	writeKnowledgeFile(t, dir, "knee_valgus.md",
		"O valgo dinâmico do joelho é um padrão comum. Exercício de correção: ativação do glúteo médio com banda.\n\n"+
			"Progressão recomendada: agachamento com banda acima dos joelhos, foco em empurrar os joelhos para fora do movimento.\n\n"+
			"Parágrafo irrelevante sobre nutrição esportiva e hidratação durante treinos longos.")
	writeKnowledgeFile(t, dir, "ankle.md",
		"Mobilidade de tornozelo: alongamento de panturrilha na parede, três séries diárias para melhorar a dorsiflexão.")

	r := NewRetriever(KnowledgeConfig{Dir: dir, MinChunkScore: 2, MaxChunksPerFile: 2, MaxTotalChunks: 10, FallbackFileScan: 20})

	chunks, err := r.Retrieve([]string{"valgus", "valgo dinâmico", "joelho"})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "knee_valgus.md", c.Source, "无关文件里不该有达标片段")
		assert.Greater(t, c.Score, 2.0)
	}
	// 按分数降序
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i-1].Score, chunks[i].Score)
	}
}

func TestRetriever_FallbackScanWhenNoFilenameMatch(t *testing.T) {
	dir := t.TempDir()
	writeKnowledgeFile(t, dir, "misc.md",
		"A dorsiflexão limitada do tornozelo compromete a profundidade. Exercício de mobilidade resolve na maioria dos casos.")

	r := NewRetriever(KnowledgeConfig{Dir: dir, MinChunkScore: 2, MaxChunksPerFile: 2, MaxTotalChunks: 10, FallbackFileScan: 20})

	chunks, err := r.Retrieve([]string{"dorsiflexão"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "misc.md", chunks[0].Source)
}

func TestRetriever_PerFileAndTotalCaps(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString("O treino de valgus com exercício corretivo melhora o padrão de movimento do joelho em poucas semanas.\n\n")
	}
	writeKnowledgeFile(t, dir, "valgus.md", b.String())

	r := NewRetriever(KnowledgeConfig{Dir: dir, MinChunkScore: 2, MaxChunksPerFile: 2, MaxTotalChunks: 10, FallbackFileScan: 20})

	chunks, err := r.Retrieve([]string{"valgus"})
	require.NoError(t, err)
	// 单文件上限2，且相同段落按前100字去重后只剩1条
	assert.Len(t, chunks, 1)
}

func TestRetriever_EmptyDirOrTopics(t *testing.T) {
	r := NewRetriever(KnowledgeConfig{Dir: ""})
	chunks, err := r.Retrieve([]string{"valgus"})
	require.NoError(t, err)
	assert.Nil(t, chunks)

	r2 := NewRetriever(KnowledgeConfig{Dir: t.TempDir()})
	chunks, err = r2.Retrieve(nil)
	require.NoError(t, err)
	assert.Nil(t, chunks)

	r3 := NewRetriever(KnowledgeConfig{Dir: "/nonexistent/biomech-kb"})
	chunks, err = r3.Retrieve([]string{"valgus"})
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestRetriever_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeKnowledgeFile(t, dir, "a_valgus.md",
		"Primeiro arquivo sobre valgus: exercício de correção com banda elástica para estabilidade do joelho.")
	writeKnowledgeFile(t, dir, "b_valgus.md",
		"Segundo arquivo sobre valgus: progressão de fortalecimento do glúteo médio em três fases distintas.")

	r := NewRetriever(KnowledgeConfig{Dir: dir, MinChunkScore: 2, MaxChunksPerFile: 2, MaxTotalChunks: 10, FallbackFileScan: 20})

	first, err := r.Retrieve([]string{"valgus"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Retrieve([]string{"valgus"})
		require.NoError(t, err)
		assert.Equal(t, first, again, "同样输入必须得到同样输出")
	}
}

func TestExpandTopics(t *testing.T) {
	terms := expandTopics([]string{"valgo dinâmico"})

	// 原词與分词保留
	assert.Contains(t, terms, "valgo dinâmico")
	assert.Contains(t, terms, "valgo")
	assert.Contains(t, terms, "dinâmico")
	// 同义词表展开
	assert.Contains(t, terms, "valgus")
	assert.Contains(t, terms, "knee cave")
	assert.Contains(t, terms, "colapso medial")

	// 无表项的主题只做分词
	assert.Equal(t, []string{"butt wink", "butt", "wink"}, expandTopics([]string{"butt wink"}))

	// 展开结果可复现
	assert.Equal(t, terms, expandTopics([]string{"valgo dinâmico"}))
}

func TestExpandTopics_ReachesFileViaSynonym(t *testing.T) {
	dir := t.TempDir()
	// 文件名只含拉丁术语同义词，主题词是葡语口语
	writeKnowledgeFile(t, dir, "valgus_corretivo.md",
		"O valgus responde a exercício de banda: fortalecimento do glúteo médio e controle do joelho.")

	// 回退扫描关掉，只有同义词展开命中文件名才能找到
	r := NewRetriever(KnowledgeConfig{Dir: dir, MinChunkScore: 2, MaxChunksPerFile: 2, MaxTotalChunks: 10,
		FallbackFileScan: 1, FallbackMinChunks: 1})

	chunks, err := r.Retrieve([]string{"valgo dinâmico"})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "valgus_corretivo.md", chunks[0].Source)
}

func TestRetriever_LowChunkCountTriggersFallback(t *testing.T) {
	dir := t.TempDir()
	// 文件名命中但内容只产出一个达标片段
	writeKnowledgeFile(t, dir, "valgus.md",
		"O valgus responde bem a exercício corretivo com banda elástica acima dos joelhos.")
	// 文件名不命中，内容相关
	writeKnowledgeFile(t, dir, "zz_geral.md",
		"Trabalho de valgus em três fases: ativação, fortalecimento e integração no padrão de agachamento.\n\n"+
			"Outro parágrafo sobre valgus com progressão de exercício unilateral para estabilidade do movimento.")

	r := NewRetriever(KnowledgeConfig{Dir: dir, MinChunkScore: 2, MaxChunksPerFile: 2, MaxTotalChunks: 10,
		FallbackFileScan: 20, FallbackMinChunks: 5})

	chunks, err := r.Retrieve([]string{"valgus"})
	require.NoError(t, err)

	sources := make(map[string]int)
	for _, c := range chunks {
		sources[c.Source]++
	}
	assert.Equal(t, 1, sources["valgus.md"])
	assert.Equal(t, 1, sources["zz_geral.md"], "命中不足时回退扫描其余文件，每个文件取一段")

	// 命中已足够时不再回退
	r2 := NewRetriever(KnowledgeConfig{Dir: dir, MinChunkScore: 2, MaxChunksPerFile: 2, MaxTotalChunks: 10,
		FallbackFileScan: 20, FallbackMinChunks: 1})
	chunks2, err := r2.Retrieve([]string{"valgus"})
	require.NoError(t, err)
	for _, c := range chunks2 {
		assert.Equal(t, "valgus.md", c.Source)
	}
}
