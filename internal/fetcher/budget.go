package fetcher

import (
	"runtime"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// BudgetConfig 下载并发预算配置
type BudgetConfig struct {
	Requested        int     // 用户请求的并发数
	PerWorkerMemory  uint64  // 单个下载协程的内存估算(字节)
	SafetyReserve    uint64  // 预留给系统的内存(字节)
	CPULoadThreshold float64 // 超过该CPU负载(%)时并发减半, <=0 表示不检查
}

// DefaultBudgetConfig 默认预算: 每协程按大资源上限估算
func DefaultBudgetConfig(requested int, maxAssetBytes int64) BudgetConfig {
	perWorker := uint64(maxAssetBytes) * 2
	if perWorker == 0 {
		perWorker = 100 * 1024 * 1024
	}
	return BudgetConfig{
		Requested:        requested,
		PerWorkerMemory:  perWorker,
		SafetyReserve:    512 * 1024 * 1024,
		CPULoadThreshold: 90,
	}
}

// WorkerBudget 根据系统可用内存和CPU负载收紧并发上限
type WorkerBudget struct {
	config    BudgetConfig
	available uint64
	cpuLoad   float64
}

// NewWorkerBudget 采样一次系统资源
func NewWorkerBudget(config BudgetConfig) *WorkerBudget {
	b := &WorkerBudget{config: config}

	vmStat, err := mem.VirtualMemory()
	if err != nil {
		utils.Warnf("获取系统内存失败, 不按内存限制并发: %v", err)
	} else {
		b.available = vmStat.Available
	}

	if config.CPULoadThreshold > 0 {
		percentages, err := cpu.Percent(100*time.Millisecond, false)
		if err == nil && len(percentages) > 0 {
			b.cpuLoad = percentages[0]
		}
	}
	return b
}

// Workers 实际使用的并发数, 至少为1, 不超过请求值
func (b *WorkerBudget) Workers() int {
	return b.compute(b.available, b.cpuLoad)
}

func (b *WorkerBudget) compute(available uint64, cpuLoad float64) int {
	workers := b.config.Requested
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	if available > 0 && b.config.PerWorkerMemory > 0 {
		var byMemory int
		if available > b.config.SafetyReserve {
			byMemory = int((available - b.config.SafetyReserve) / b.config.PerWorkerMemory)
		}
		if byMemory < workers {
			utils.Warnf("可用内存 %.0fMB 不足, 并发由 %d 收紧为 %d",
				float64(available)/(1024*1024), workers, max(byMemory, 1))
			workers = byMemory
		}
	}

	if b.config.CPULoadThreshold > 0 && cpuLoad > b.config.CPULoadThreshold {
		utils.Warnf("CPU负载过高(%.1f%%), 并发减半", cpuLoad)
		workers /= 2
	}

	if workers < 1 {
		workers = 1
	}
	return workers
}
