package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"
)

// Sample 一次内存采样
type Sample struct {
	Bytes  uint64 `json:"bytes"`
	Source string `json:"source"`
}

// MB 返回四舍五入后的 MiB
func (s Sample) MB() uint64 {
	return (s.Bytes + (1<<20)/2) >> 20
}

// Sampler 读取当前内存用量
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// =============================================================================
// 📦 cgroup
// =============================================================================

// CgroupSampler 按顺序读取 cgroup 内存文件，第一个可用的生效
type CgroupSampler struct {
	paths []string
}

// NewCgroupSampler 创建 cgroup 采样器
func NewCgroupSampler(paths ...string) *CgroupSampler {
	return &CgroupSampler{paths: paths}
}

// Sample 实现 Sampler
func (c *CgroupSampler) Sample(_ context.Context) (Sample, error) {
	if len(c.paths) == 0 {
		return Sample{}, errors.New("no cgroup memory paths configured")
	}

	var errs []error
	for _, path := range c.paths {
		n, err := readCgroupValue(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return Sample{Bytes: n, Source: "cgroup"}, nil
	}
	return Sample{}, fmt.Errorf("cgroup memory unavailable: %w", errors.Join(errs...))
}

func readCgroupValue(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(data))
	if raw == "max" {
		return 0, fmt.Errorf("%s: unlimited", path)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// =============================================================================
// 🖥️ host
// =============================================================================

// HostSampler 通过 /proc/meminfo 计算整机已用内存：MemTotal - MemAvailable，
// 旧内核没有 MemAvailable 时退回 MemFree
type HostSampler struct {
	fs procfs.FS
}

// NewHostSampler 创建主机采样器，procPath 通常为 /proc
func NewHostSampler(procPath string) (*HostSampler, error) {
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, fmt.Errorf("open procfs %q: %w", procPath, err)
	}
	return &HostSampler{fs: fs}, nil
}

// Sample 实现 Sampler
func (h *HostSampler) Sample(_ context.Context) (Sample, error) {
	mi, err := h.fs.Meminfo()
	if err != nil {
		return Sample{}, fmt.Errorf("read meminfo: %w", err)
	}
	if mi.MemTotal == nil {
		return Sample{}, errors.New("meminfo missing MemTotal")
	}

	var free uint64
	switch {
	case mi.MemAvailable != nil:
		free = *mi.MemAvailable
	case mi.MemFree != nil:
		free = *mi.MemFree
	default:
		return Sample{}, errors.New("meminfo missing MemAvailable and MemFree")
	}
	total := *mi.MemTotal
	if free > total {
		free = total
	}
	return Sample{Bytes: (total - free) * 1024, Source: "host"}, nil
}

// =============================================================================
// 🔀 fallback
// =============================================================================

// FallbackSampler 首选来源失败时静默切换到备用来源
type FallbackSampler struct {
	primary   Sampler
	secondary Sampler
	logger    *zap.Logger
}

// NewFallbackSampler 创建回退采样器，secondary 可为 nil
func NewFallbackSampler(primary, secondary Sampler, logger *zap.Logger) *FallbackSampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackSampler{primary: primary, secondary: secondary, logger: logger}
}

// Sample 实现 Sampler
func (f *FallbackSampler) Sample(ctx context.Context) (Sample, error) {
	s, err := f.primary.Sample(ctx)
	if err == nil {
		return s, nil
	}
	if f.secondary == nil {
		return Sample{}, err
	}

	f.logger.Debug("primary memory source failed, using fallback", zap.Error(err))
	s, err2 := f.secondary.Sample(ctx)
	if err2 != nil {
		return Sample{}, errors.Join(err, err2)
	}
	return s, nil
}
