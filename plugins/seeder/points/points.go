// Package points 把每个种子值解释为单点区间 [v, v+1)。
package points

import (
	"context"
	"fmt"
	"math"

	"almanac/pkg/contract"
)

// Seeder 为单点模式。无选项。
type Seeder struct{}

// New 创建单点 Seeder。
func New() *Seeder { return &Seeder{} }

var _ contract.Seeder = (*Seeder)(nil)

func (Seeder) Seed(ctx context.Context, values []uint64) ([]contract.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]contract.Interval, 0, len(values))
	for _, v := range values {
		if v == math.MaxUint64 {
			return nil, fmt.Errorf("%w: seed %d has no half-open successor", contract.ErrOverflow, v)
		}
		out = append(out, contract.Interval{Start: v, End: v + 1})
	}
	return out, nil
}
