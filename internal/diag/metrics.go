package diag

import (
	"maps"
	"sync"
)

// 进程内计数器：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累加）

var (
	metricsMu sync.Mutex
	opTotal   = map[string]int64{}
	errTotal  = map[string]int64{}
	durTotal  = map[string]int64{}
)

// Metrics 为某一时刻的计数快照；键形如 "comp/stage/result"、"comp/code"、"comp/stage"。
type Metrics struct {
	Ops        map[string]int64 `json:"op_total"`
	Errors     map[string]int64 `json:"error_total"`
	DurationMS map[string]int64 `json:"op_duration_ms"`
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	metricsMu.Lock()
	opTotal[comp+"/"+stage+"/"+result]++
	metricsMu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metricsMu.Lock()
	errTotal[comp+"/"+code]++
	metricsMu.Unlock()
}

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	metricsMu.Lock()
	durTotal[comp+"/"+stage] += durMS
	metricsMu.Unlock()
}

// Snapshot 返回计数副本。
func Snapshot() Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return Metrics{Ops: maps.Clone(opTotal), Errors: maps.Clone(errTotal), DurationMS: maps.Clone(durTotal)}
}

// ResetMetrics 清零全部计数（测试用）。
func ResetMetrics() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	clear(opTotal)
	clear(errTotal)
	clear(durTotal)
}
