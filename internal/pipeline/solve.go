package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"almanac/internal/diag"
	"almanac/internal/stage"
	"almanac/pkg/contract"
)

// Fold 依次把区间集合送过每个阶段（左折叠），阶段之间检查 ctx。
func Fold(ctx context.Context, ranges []contract.Interval, stages []*stage.Table) ([]contract.Interval, error) {
	cur := ranges
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := st.Apply(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// Min 返回区间集合中最小的 Start；空集合返回 ErrEmptyInput。
func Min(ranges []contract.Interval) (uint64, error) {
	if len(ranges) == 0 {
		return 0, contract.ErrEmptyInput
	}
	m := ranges[0].Start
	for _, iv := range ranges[1:] {
		if iv.Start < m {
			m = iv.Start
		}
	}
	return m, nil
}

// Build 将解析结果中的每个块构造成阶段表，保持输入顺序。
func Build(specs []contract.StageSpec) ([]*stage.Table, error) {
	out := make([]*stage.Table, 0, len(specs))
	for _, sp := range specs {
		t, err := stage.New(sp.Name, sp.Rules)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Solve 求单个 Almanac 的最小位置：
// 1) seeds 经 Seeder 得到初始区间，空集合立即返回 ErrEmptyInput（不构造任何阶段）；
// 2) 构造阶段表，重叠/溢出错误直接上抛；
// 3) 每个初始区间独立折叠，由 errgroup 限流并发，首错取消其余任务；
// 4) 各任务的最小值归约为全局最小。
func Solve(ctx context.Context, alm contract.Almanac, seeder contract.Seeder, set Settings) (uint64, error) {
	seeds, err := seeder.Seed(ctx, alm.Seeds)
	if err != nil {
		return 0, fmt.Errorf("seeder: %w", err)
	}
	if len(seeds) == 0 {
		return 0, contract.ErrEmptyInput
	}
	stages, err := Build(alm.Stages)
	if err != nil {
		return 0, fmt.Errorf("build: %w", err)
	}

	if set.Concurrency <= 1 || len(seeds) == 1 {
		out, err := Fold(ctx, seeds, stages)
		if err != nil {
			return 0, err
		}
		return Min(out)
	}

	mins := make([]uint64, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)
	for i, iv := range seeds {
		g.Go(func() error {
			out, err := Fold(gctx, []contract.Interval{iv}, stages)
			if err != nil {
				return fmt.Errorf("range %s: %w", iv, err)
			}
			m, err := Min(out)
			if err != nil {
				return err
			}
			mins[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	m := mins[0]
	for _, v := range mins[1:] {
		m = min(m, v)
	}
	return m, nil
}

func formatAnswer(n uint64) string {
	return strconv.FormatUint(n, 10) + "\n"
}

// observe 记录组件错误事件与计数（nil logger 下仅计数）。
func observe(logger *diag.Logger, comp, msg string, err error, fileID contract.FileID) {
	code := diag.Classify(err)
	logger.ErrorWith(comp, string(code), msg+": "+err.Error(), nil, string(fileID))
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}
