package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// 姿态测量：调用外部姿态测量服务，从采样帧计算关节角度等指标
// 服务未配置时返回不可用，流水线据此切换到视觉比对路径

// MetricsProvider 姿态测量接口
type MetricsProvider interface {
	Available() bool
	Measure(ctx context.Context, pattern string, frames []SampledFrame) (map[string]float64, error)
}

// HTTPMetricsProvider HTTP 姿态测量服务客户端
type HTTPMetricsProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPMetricsProvider 创建客户端，baseURL 为空表示服务不可用
func NewHTTPMetricsProvider(baseURL string, timeout time.Duration) *HTTPMetricsProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPMetricsProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Available 姿态测量服务是否已配置
func (p *HTTPMetricsProvider) Available() bool {
	return p.baseURL != ""
}

type measureRequest struct {
	Pattern string   `json:"pattern"`
	Frames  []string `json:"frames"` // base64 JPEG，按时间顺序
}

type measureResponse struct {
	Metrics map[string]float64 `json:"metrics"`
	Error   string             `json:"error,omitempty"`
}

// Measure 把采样帧送测量服务，返回指标名到数值的映射
func (p *HTTPMetricsProvider) Measure(ctx context.Context, pattern string, frames []SampledFrame) (map[string]float64, error) {
	if !p.Available() {
		return nil, fmt.Errorf("姿态测量服务未配置")
	}

	images, err := LoadFrameImages(frames)
	if err != nil {
		return nil, err
	}

	body := measureRequest{Pattern: pattern}
	for _, img := range images {
		body.Frames = append(body.Frames, encodeBase64(img))
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("构建测量请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/measure", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建测量请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求姿态测量服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("姿态测量服务返回 %d", resp.StatusCode)
	}

	var out measureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("解析测量结果失败: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("姿态测量失败: %s", out.Error)
	}
	if len(out.Metrics) == 0 {
		return nil, fmt.Errorf("姿态测量返回空结果")
	}
	return out.Metrics, nil
}
