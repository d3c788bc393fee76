package logsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileMirror 将每一行追加到本地文件
type FileMirror struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenFileMirror 以追加模式打开（必要时创建）文件
func OpenFileMirror(path string) (*FileMirror, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open activity log %q: %w", path, err)
	}
	return &FileMirror{path: path, f: f}, nil
}

// Name 返回镜像名称
func (m *FileMirror) Name() string { return "file" }

// Path 返回文件路径
func (m *FileMirror) Path() string { return m.path }

// Write 追加一行
func (m *FileMirror) Write(_ context.Context, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return fmt.Errorf("activity log %q is closed", m.path)
	}
	_, err := m.f.WriteString(line + "\n")
	return err
}

// Close 关闭文件
func (m *FileMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}
