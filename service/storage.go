package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// 媒体解析：把分析单上的媒体引用变成本地可读文件
// 本地引用限定在媒体根目录内；HTTP 地址下载到临时文件，用后清理

// MediaStore 媒体解析接口
type MediaStore interface {
	Resolve(ctx context.Context, mediaRef string) (localPath string, cleanup func(), err error)
}

// LocalMediaStore 媒体根目录 + HTTP 下载的默认实现
type LocalMediaStore struct {
	root       string
	httpClient *http.Client
}

// NewLocalMediaStore 创建媒体解析器，root 为本地媒体根目录，空表示禁用本地引用
func NewLocalMediaStore(root string) *LocalMediaStore {
	return &LocalMediaStore{root: root, httpClient: &http.Client{Timeout: 120 * time.Second}}
}

// Resolve 解析媒体引用
// 本地引用视为相对媒体根目录的路径，越界引用一律拒绝
func (m *LocalMediaStore) Resolve(ctx context.Context, mediaRef string) (string, func(), error) {
	noop := func() {}
	if mediaRef == "" {
		return "", noop, fmt.Errorf("媒体引用为空: %w", ErrValidation)
	}

	if strings.HasPrefix(mediaRef, "http://") || strings.HasPrefix(mediaRef, "https://") {
		return m.download(ctx, mediaRef)
	}

	if m.root == "" {
		return "", noop, fmt.Errorf("未配置媒体根目录，不接受本地媒体引用: %w", ErrValidation)
	}
	rootAbs, err := filepath.Abs(m.root)
	if err != nil {
		return "", noop, err
	}
	path := filepath.Join(rootAbs, filepath.Clean("/"+mediaRef))
	if path == rootAbs || !strings.HasPrefix(path, rootAbs+string(filepath.Separator)) {
		return "", noop, fmt.Errorf("媒体引用越出根目录 %s: %w", mediaRef, ErrValidation)
	}

	if _, err := os.Stat(path); err != nil {
		return "", noop, fmt.Errorf("媒体文件不存在 %s: %w", mediaRef, err)
	}
	return path, noop, nil
}

func (m *LocalMediaStore) download(ctx context.Context, url string) (string, func(), error) {
	noop := func() {}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", noop, fmt.Errorf("创建下载请求失败: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", noop, fmt.Errorf("下载媒体失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", noop, fmt.Errorf("下载媒体失败: HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "biomech-media-*.mp4")
	if err != nil {
		return "", noop, fmt.Errorf("创建临时文件失败: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			log.Printf("清理媒体临时文件失败 %s: %v", tmp.Name(), err)
		}
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		cleanup()
		return "", noop, fmt.Errorf("写入媒体文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noop, err
	}
	return tmp.Name(), cleanup, nil
}
