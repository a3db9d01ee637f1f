// Package pairs 把种子值按 (start, length) 成对解释为区间。
package pairs

import (
	"context"
	"fmt"
	"math"

	"almanac/pkg/contract"
)

// Seeder 为成对模式。长度为 0 的对被跳过。
type Seeder struct{}

// New 创建成对 Seeder。
func New() *Seeder { return &Seeder{} }

var _ contract.Seeder = (*Seeder)(nil)

func (Seeder) Seed(ctx context.Context, values []uint64) ([]contract.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(values)%2 != 0 {
		return nil, &contract.FormatError{Field: "seeds", Msg: fmt.Sprintf("expected (start, length) pairs, got %d values", len(values))}
	}
	out := make([]contract.Interval, 0, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		start, n := values[i], values[i+1]
		if n == 0 {
			continue
		}
		if n > math.MaxUint64-start {
			return nil, fmt.Errorf("%w: seed range %d+%d", contract.ErrOverflow, start, n)
		}
		out = append(out, contract.Interval{Start: start, End: start + n})
	}
	return out, nil
}
