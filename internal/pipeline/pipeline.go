package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"almanac/internal/diag"
	"almanac/pkg/contract"
)

// - 逐文件：Reader 按文件回调；每个文件独立 Parse → Solve → Write。
// - 单点并发：仅 Solve 内部按初始区间并发；原子组件均为同步、无内部并发。
// - 首错中止：任一文件任一阶段出错即返回，已写出的答案不回滚，未处理文件不再处理。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	Parser contract.Parser
	Seeder contract.Seeder
	Writer contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs []string
	// Concurrency: 单文件内同时折叠的初始区间数上限；<=1 表示串行
	Concurrency int
}

// Result 为单个输入文件的答案。
type Result struct {
	FileID contract.FileID
	Answer uint64
}

// Run 执行完整流水线：Reader → Parser → Seeder → Stages → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]Result, error) {
	if err := sanity(comp); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}

	var results []Result
	perFile := func(fid contract.FileID, r io.Reader) error {
		ptimer := logger.StartWith("parser", "parse", string(fid))
		alm, err := comp.Parser.Parse(ctx, fid, r)
		if err != nil {
			observe(logger, "parser", "parse failed", err, fid)
			return fmt.Errorf("parser parse: %w", err)
		}
		ptimer.Finish("parse", int64(len(alm.Stages)))
		diag.IncOp("parser", "finish", "success")
		logger.DebugStart("parser", "almanac", string(fid), map[string]string{
			"seeds":  strconv.Itoa(len(alm.Seeds)),
			"stages": strconv.Itoa(len(alm.Stages)),
		})

		stimer := logger.StartWithKV("solver", "solve", string(fid), map[string]string{
			"concurrency": strconv.Itoa(set.Concurrency),
		})
		ans, err := Solve(ctx, alm, comp.Seeder, set)
		if err != nil {
			observe(logger, "solver", "solve failed", err, fid)
			return fmt.Errorf("solve: %w", err)
		}
		stimer.Finish("solve", 1)
		diag.IncOp("solver", "finish", "success")

		wtimer := logger.StartWith("writer", "write", string(fid))
		// 工件 ID 即输入 FileID；落盘命名（如 .answer 后缀）由 Writer 决定
		if err := comp.Writer.Write(ctx, contract.ArtifactID(fid), strings.NewReader(formatAnswer(ans))); err != nil {
			observe(logger, "writer", "write failed", err, fid)
			return fmt.Errorf("writer write: %w", err)
		}
		wtimer.Finish("write", 1)
		diag.IncOp("writer", "finish", "success")

		results = append(results, Result{FileID: fid, Answer: ans})
		return nil
	}

	rtimer := logger.Start("reader", "iterate")
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := perFile(fid, rc); err != nil {
			return fmt.Errorf("file %s: %w", fid, err)
		}
		return nil
	})
	if err != nil {
		code := diag.Classify(err)
		logger.Error("reader", string(code), "iterate failed", nil)
		diag.IncOp("reader", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("reader", string(code))
		}
		return results, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(len(results)))
	diag.IncOp("reader", "finish", "success")
	return results, nil
}

func sanity(c Components) error {
	if c.Reader == nil || c.Parser == nil || c.Seeder == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	return nil
}
