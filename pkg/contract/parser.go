package contract

import (
	"context"
	"io"
)

// Parser: 将单个输入字节流解析为 Almanac。
// 约束：
// 1) 一次性读完输入，解析失败不返回部分结果；
// 2) 格式错误以 *FormatError 上抛；
// 3) 不解释种子语义（交给 Seeder）；
// 4) 无内部并发、幂等。
type Parser interface {
	Parse(ctx context.Context, fileID FileID, r io.Reader) (Almanac, error)
}
