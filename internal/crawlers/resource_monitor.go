package crawlers

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/studiobloom/Reflow/internal/utils"
)

// DownloadGovernor 下载阶段资源调节器
// 职责: 周期采样系统与进程内存,内存吃紧时降低允许开始新下载的worker数
//
// 调节只收紧不中断: 已在下载中的worker不受影响,仅推迟空闲worker领取新任务;
// 允许数永远不低于1,也不高于配置的worker数
type DownloadGovernor struct {
	// configuredWorkers 配置的下载并发数 (上限)
	configuredWorkers int

	// totalMemory 系统总内存(字节)
	totalMemory uint64

	// lastAvailable 最近一次采样的系统可用内存(字节)
	lastAvailable uint64

	// 缓存的允许worker数 (1秒TTL,避免每次领取任务都重新计算)
	cachedAllowed int
	lastCacheTime time.Time
	cacheMu       sync.RWMutex

	mu sync.RWMutex

	cancelFunc context.CancelFunc
	isRunning  bool
}

// 内存压力阈值 (可用内存,MB)
const (
	memCriticalMB = 256 // 低于此值仅允许1个worker
	memWarningMB  = 512 // 低于此值允许数减半
)

// NewDownloadGovernor 创建下载调节器
func NewDownloadGovernor(configuredWorkers int) *DownloadGovernor {
	if configuredWorkers < 1 {
		configuredWorkers = 1
	}

	var totalMem, available uint64
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		utils.Warnf("获取系统内存失败,资源调节按4GB估算: %v", err)
		totalMem = 4 * 1024 * 1024 * 1024
		available = totalMem / 2
	} else {
		totalMem = vmStat.Total
		available = vmStat.Available
		utils.Debugf("系统总内存: %.2f GB, 可用: %.2f GB",
			float64(totalMem)/(1024*1024*1024), float64(available)/(1024*1024*1024))
	}

	return &DownloadGovernor{
		configuredWorkers: configuredWorkers,
		totalMemory:       totalMem,
		lastAvailable:     available,
	}
}

// Start 启动后台采样循环 (幂等)
func (g *DownloadGovernor) Start(interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancelFunc = cancel
	g.isRunning = true

	go g.samplingLoop(ctx, interval)
}

// Stop 停止采样
func (g *DownloadGovernor) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.isRunning && g.cancelFunc != nil {
		g.cancelFunc()
		g.isRunning = false
		g.cancelFunc = nil
	}
}

// samplingLoop 后台采样循环
func (g *DownloadGovernor) samplingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vmStat, err := mem.VirtualMemory()
			if err != nil {
				continue
			}
			g.mu.Lock()
			g.lastAvailable = vmStat.Available
			g.mu.Unlock()
		}
	}
}

// AllowedWorkers 当前允许开始新下载的worker数
// 结果带1秒缓存;内存充足时等于配置值
func (g *DownloadGovernor) AllowedWorkers() int {
	g.cacheMu.RLock()
	if time.Since(g.lastCacheTime) < time.Second && g.cachedAllowed > 0 {
		cached := g.cachedAllowed
		g.cacheMu.RUnlock()
		return cached
	}
	g.cacheMu.RUnlock()

	g.mu.RLock()
	available := g.lastAvailable
	g.mu.RUnlock()

	// 把进程自身堆占用也计入压力判断
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	if memStats.Alloc < available {
		available -= memStats.Alloc
	} else {
		available = 0
	}

	availableMB := available / (1024 * 1024)

	allowed := g.configuredWorkers
	switch {
	case availableMB < memCriticalMB:
		allowed = 1
		utils.Warnf("可用内存不足(%dMB),下载并发降至1", availableMB)
	case availableMB < memWarningMB:
		allowed = g.configuredWorkers / 2
		if allowed < 1 {
			allowed = 1
		}
		utils.Debugf("可用内存偏低(%dMB),下载并发降至%d", availableMB, allowed)
	}

	g.cacheMu.Lock()
	g.cachedAllowed = allowed
	g.lastCacheTime = time.Now()
	g.cacheMu.Unlock()

	return allowed
}
