// Package stage 实现单个映射阶段：一组互不相交的常量偏移改写规则。
//
// 阶段对区间做切分而非逐点映射：与某条规则源区间相交的部分被平移到目标域，
// 剩余的左右残段回到工作表继续匹配，最终未命中任何规则的部分保持原值。
package stage

import (
	"fmt"
	"sort"

	"almanac/pkg/contract"
)

// Table 为构造后只读的阶段；规则按 Src 升序且两两不相交。
type Table struct {
	name  string
	rules []contract.Rule
}

// New 构造阶段并校验规则。
// - Len 为 0 的规则被丢弃；
// - 端点溢出返回 ErrOverflow；
// - 源区间相交返回 *contract.OverlapError（不按出现顺序取舍）。
func New(name string, rules []contract.Rule) (*Table, error) {
	rs := make([]contract.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Len == 0 {
			continue
		}
		if err := r.Check(); err != nil {
			return nil, fmt.Errorf("stage %q: %w", name, err)
		}
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Src < rs[j].Src })
	for i := 1; i < len(rs); i++ {
		if rs[i-1].Source().Overlaps(rs[i].Source()) {
			return nil, &contract.OverlapError{Stage: name, A: rs[i-1], B: rs[i]}
		}
	}
	return &Table{name: name, rules: rs}, nil
}

// Name 返回块头名称（仅用于日志）。
func (t *Table) Name() string { return t.name }

// Rules 返回规则副本（按 Src 升序）。
func (t *Table) Rules() []contract.Rule {
	out := make([]contract.Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// find 返回与 iv 相交的规则；规则有序且不相交，故至多一条覆盖 iv.Start 之后的首段。
func (t *Table) find(iv contract.Interval) (contract.Rule, bool) {
	// 第一条源区间末端超过 iv.Start 的规则
	i := sort.Search(len(t.rules), func(i int) bool { return t.rules[i].Src+t.rules[i].Len > iv.Start })
	if i < len(t.rules) && t.rules[i].Src < iv.End {
		return t.rules[i], true
	}
	return contract.Rule{}, false
}

// Apply 将区间集合送过本阶段。
// 输出集合与输入覆盖的标识符总数相同；相邻或重叠的输出不合并。
func (t *Table) Apply(in []contract.Interval) ([]contract.Interval, error) {
	work := make([]contract.Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Valid() {
			return nil, fmt.Errorf("stage %q: %w: empty interval %s", t.name, contract.ErrInvalidInput, iv)
		}
		work = append(work, iv)
	}
	out := make([]contract.Interval, 0, len(in))
	for len(work) > 0 {
		iv := work[len(work)-1]
		work = work[:len(work)-1]

		r, ok := t.find(iv)
		if !ok {
			out = append(out, iv)
			continue
		}
		ov, _ := iv.Intersect(r.Source())
		moved, err := r.Shift(ov)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", t.name, err)
		}
		out = append(out, moved)
		// 残段尚未定论，回到工作表
		if iv.Start < ov.Start {
			work = append(work, contract.Interval{Start: iv.Start, End: ov.Start})
		}
		if ov.End < iv.End {
			work = append(work, contract.Interval{Start: ov.End, End: iv.End})
		}
	}
	return out, nil
}

// MapPoint 逐点映射单个标识符；仅作小规模校验用的参照实现。
func (t *Table) MapPoint(x uint64) uint64 {
	for _, r := range t.rules {
		if r.Source().Contains(x) {
			return r.Dst + (x - r.Src)
		}
	}
	return x
}
