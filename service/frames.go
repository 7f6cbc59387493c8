package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// 帧采样：调用 ffprobe/ffmpeg 从视频中按固定间隔抽取关键帧
// 命令执行通过 CommandRunner 注入，测试无需真实二进制

// CommandRunner 外部命令执行接口
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner 真实的命令执行器
type ExecRunner struct{}

// Run 执行命令并返回合并输出
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// SamplerConfig 采样参数
type SamplerConfig struct {
	FrameCount      int           // 目标帧数
	DefaultDuration float64       // ffprobe 失败时的兜底时长（秒）
	FrameTimeout    time.Duration // 单帧抽取超时
}

// SampledFrame 抽取出的单帧
type SampledFrame struct {
	Index     int
	Timestamp float64 // 秒
	Path      string
}

// FrameSampler 视频帧采样器
type FrameSampler struct {
	cfg    SamplerConfig
	runner CommandRunner
}

// NewFrameSampler 创建采样器，runner 为 nil 时用真实的命令执行器
func NewFrameSampler(cfg SamplerConfig, runner CommandRunner) *FrameSampler {
	if cfg.FrameCount <= 0 {
		cfg.FrameCount = 6
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 30
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = 15 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FrameSampler{cfg: cfg, runner: runner}
}

// ProbeDuration 用 ffprobe 读视频时长，失败时回退到默认值
func (s *FrameSampler) ProbeDuration(ctx context.Context, videoPath string) float64 {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FrameTimeout)
	defer cancel()

	out, err := s.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)
	if err != nil {
		log.Printf("ffprobe 失败，使用默认时长 %.0fs: %v", s.cfg.DefaultDuration, err)
		return s.cfg.DefaultDuration
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return s.cfg.DefaultDuration
	}
	return d
}

// Timestamps 计算采样时间点：均匀分布且避开首尾
// 间隔 = 时长/(帧数+1)，第 i 帧取 i*间隔
func (s *FrameSampler) Timestamps(duration float64) []float64 {
	if duration <= 0 {
		duration = s.cfg.DefaultDuration
	}
	interval := duration / float64(s.cfg.FrameCount+1)
	out := make([]float64, 0, s.cfg.FrameCount)
	for i := 1; i <= s.cfg.FrameCount; i++ {
		out = append(out, float64(i)*interval)
	}
	return out
}

// Sample 抽取帧到临时目录，返回帧列表和清理函数
// 个别帧失败会跳过，全部失败才返回错误；调用方必须调用 cleanup
func (s *FrameSampler) Sample(ctx context.Context, videoPath string) ([]SampledFrame, func(), error) {
	workDir, err := os.MkdirTemp("", "biomech-frames-*")
	if err != nil {
		return nil, func() {}, fmt.Errorf("创建临时目录失败: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Printf("清理帧目录失败 %s: %v", workDir, err)
		}
	}

	duration := s.ProbeDuration(ctx, videoPath)

	var frames []SampledFrame
	for i, ts := range s.Timestamps(duration) {
		outPath := filepath.Join(workDir, fmt.Sprintf("frame_%02d.jpg", i+1))
		if err := s.extractFrame(ctx, videoPath, ts, outPath); err != nil {
			log.Printf("抽帧失败 t=%.2fs: %v", ts, err)
			continue
		}
		frames = append(frames, SampledFrame{Index: i + 1, Timestamp: ts, Path: outPath})
	}

	if len(frames) == 0 {
		cleanup()
		return nil, func() {}, fmt.Errorf("视频抽帧全部失败: %s", videoPath)
	}
	return frames, cleanup, nil
}

func (s *FrameSampler) extractFrame(ctx context.Context, videoPath string, ts float64, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FrameTimeout)
	defer cancel()

	out, err := s.runner.Run(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.2f", ts),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		outPath,
		"-y")
	if err != nil {
		return fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))
	}
	if _, statErr := os.Stat(outPath); statErr != nil {
		return fmt.Errorf("输出文件未生成: %w", statErr)
	}
	return nil
}

// LoadFrameImages 读取帧文件内容，供视觉模型使用
func LoadFrameImages(frames []SampledFrame) ([][]byte, error) {
	images := make([][]byte, 0, len(frames))
	for _, f := range frames {
		b, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("读取帧文件失败 %s: %w", f.Path, err)
		}
		images = append(images, b)
	}
	return images, nil
}
