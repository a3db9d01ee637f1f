package contract

import "context"

// Seeder: 把 seeds 行上的原始数值解释为初始区间集合。
// 空输入返回空切片（由编排层判定 ErrEmptyInput）。
type Seeder interface {
	Seed(ctx context.Context, values []uint64) ([]Interval, error)
}
