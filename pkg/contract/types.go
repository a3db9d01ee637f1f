package contract

import (
	"fmt"
	"math"
)

// FileID: 逻辑输入ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Interval: 半开区间 [Start, End)，表示一段连续的标识符。
// 约束：Start < End；值类型，运算只产生新区间，不修改原值。
type Interval struct {
	Start uint64
	End   uint64
}

// Valid 报告区间是否非空（Start < End）。
func (iv Interval) Valid() bool { return iv.Start < iv.End }

// Len 返回区间内标识符个数。
func (iv Interval) Len() uint64 { return iv.End - iv.Start }

// Contains 报告 x 是否落在区间内。
func (iv Interval) Contains(x uint64) bool { return iv.Start <= x && x < iv.End }

// Overlaps 报告两个区间是否有交集。
func (iv Interval) Overlaps(o Interval) bool { return iv.Start < o.End && o.Start < iv.End }

// Intersect 返回交集；无交集时第二返回值为 false。
func (iv Interval) Intersect(o Interval) (Interval, bool) {
	out := Interval{Start: max(iv.Start, o.Start), End: min(iv.End, o.End)}
	if out.Start < out.End {
		return out, true
	}
	return Interval{}, false
}

func (iv Interval) String() string { return fmt.Sprintf("[%d,%d)", iv.Start, iv.End) }

// Rule: 单条改写规则，[Src, Src+Len) → [Dst, Dst+Len)，按常量偏移一一映射。
// 字段顺序与输入行一致（dst src len）。
type Rule struct {
	Dst uint64
	Src uint64
	Len uint64
}

// Source 返回规则的源区间。调用前需保证 Src+Len 不溢出（见 Check）。
func (r Rule) Source() Interval { return Interval{Start: r.Src, End: r.Src + r.Len} }

// Check 校验 Src+Len 与 Dst+Len 均不超出 uint64。
func (r Rule) Check() error {
	if r.Len > math.MaxUint64-r.Src {
		return fmt.Errorf("%w: source %d+%d", ErrOverflow, r.Src, r.Len)
	}
	if r.Len > math.MaxUint64-r.Dst {
		return fmt.Errorf("%w: destination %d+%d", ErrOverflow, r.Dst, r.Len)
	}
	return nil
}

// Shift 将完全落在源区间内的 iv 平移到目标域。
// 先取相对源起点的位移再加到 Dst 上，避免有符号偏移与中间溢出。
func (r Rule) Shift(iv Interval) (Interval, error) {
	src := r.Source()
	if !iv.Valid() || iv.Start < src.Start || iv.End > src.End {
		return Interval{}, fmt.Errorf("%w: %s outside rule source %s", ErrInvalidInput, iv, src)
	}
	lo := iv.Start - r.Src
	hi := iv.End - r.Src
	if hi > math.MaxUint64-r.Dst {
		return Interval{}, fmt.Errorf("%w: shift %s by rule %d->%d", ErrOverflow, iv, r.Src, r.Dst)
	}
	return Interval{Start: r.Dst + lo, End: r.Dst + hi}, nil
}

// StageSpec: 解析得到的一个映射块；Name 仅用于日志与错误信息。
type StageSpec struct {
	Name  string
	Rules []Rule
}

// Almanac: 单个输入的完整解析结果（种子原值 + 有序阶段）。
// 种子如何解释为区间由 Seeder 决定。
type Almanac struct {
	Seeds  []uint64
	Stages []StageSpec
}
