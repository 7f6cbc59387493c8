package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// 推理客户端：对接 Ollama 兼容的本地推理服务
// 端点来自 AIModel 注册表，文本与视觉走同一服务的不同模型

// InferenceClient 推理服务客户端接口，便于测试替换
type InferenceClient interface {
	ListModels(ctx context.Context) ([]string, error)
	HasModel(ctx context.Context, name string) (bool, error)
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest 一次生成请求
type GenerateRequest struct {
	Model  string
	Prompt string
	Images [][]byte // 可选，视觉模型的输入帧
}

// OllamaClient Ollama API 客户端
type OllamaClient struct {
	baseURL         string
	apiKey          string
	probeTimeout    time.Duration
	generateTimeout time.Duration
	httpClient      *http.Client
}

// NewOllamaClient 创建客户端，baseURL 取自端点注册表
func NewOllamaClient(baseURL, apiKey string, probeTimeout, generateTimeout time.Duration) *OllamaClient {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	if generateTimeout <= 0 {
		generateTimeout = 180 * time.Second
	}
	return &OllamaClient{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          apiKey,
		probeTimeout:    probeTimeout,
		generateTimeout: generateTimeout,
		httpClient:      &http.Client{},
	}
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels 获取服务端已加载的模型列表，同时作为可用性探测
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: 推理服务返回 %d", ErrInferenceUnavailable, resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("解析模型列表失败: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel 检查服务端是否加载了指定模型（忽略 tag 后缀差异）
func (c *OllamaClient) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	base := strings.SplitN(name, ":", 2)[0]
	for _, m := range models {
		if m == name || strings.SplitN(m, ":", 2)[0] == base {
			return true, nil
		}
	}
	return false, nil
}

type ollamaGenerateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"` // base64
	Stream bool     `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate 非流式生成，带图片时走视觉模型
func (c *OllamaClient) Generate(ctx context.Context, greq GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()

	body := ollamaGenerateRequest{
		Model:  greq.Model,
		Prompt: greq.Prompt,
		Stream: false,
	}
	for _, img := range greq.Images {
		body.Images = append(body.Images, encodeBase64(img))
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("构建请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("推理服务返回错误: %d, %s", resp.StatusCode, string(raw))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("解析生成结果失败: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("推理服务返回空结果")
	}
	return out.Response, nil
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func (c *OllamaClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
