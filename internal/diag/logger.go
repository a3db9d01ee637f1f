package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化事件日志器：单行 JSON（zap 编码），默认写入轮转文件 logs/almanac-current.txt。
// 事件字段：level, ts, corr_id, comp, stage(start|finish|error), code, dur_ms, count, file_id, msg, kv。
// nil *Logger 的所有方法均为 no-op。
type Logger struct {
	z    *zap.Logger
	sink io.Closer
}

// NewLogger 通过 level 初始化，写入 ./logs，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := newLogger(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 写往任意 io.Writer（测试、嵌入或 stderr）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	return newLogger(zapcore.AddSync(w), corrID, level)
}

func newLogger(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.Lock(ws), parseLevel(level))
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	if corrID != "" {
		z = z.With(zap.String("corr_id", corrID))
	}
	return &Logger{z: z}
}

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Event 为标准事件结构（零值字段不输出）。
type Event struct {
	Comp   string
	Stage  string // start|finish|warn|error
	Code   string
	DurMS  int64
	Count  int64
	FileID string
	Msg    string
	KV     map[string]string
}

func (ev Event) fields() []zap.Field {
	fs := make([]zap.Field, 0, 8)
	fs = append(fs, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fs = append(fs, zap.String("code", ev.Code))
	}
	if ev.DurMS != 0 {
		fs = append(fs, zap.Int64("dur_ms", ev.DurMS))
	}
	if ev.Count != 0 {
		fs = append(fs, zap.Int64("count", ev.Count))
	}
	if ev.FileID != "" {
		fs = append(fs, zap.String("file_id", ev.FileID))
	}
	if len(ev.KV) > 0 {
		fs = append(fs, zap.Any("kv", ev.KV))
	}
	return fs
}

func (l *Logger) log(lv zapcore.Level, ev Event) {
	if l == nil || l.z == nil {
		return
	}
	if ce := l.z.Check(lv, ev.Msg); ce != nil {
		ce.Write(ev.fields()...)
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWith(comp, msg, "")
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	return l.StartWithKV(comp, msg, fileID, nil)
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWith(comp, code, msg, durSince, "")
}

// ErrorWith 支持 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(zapcore.ErrorLevel, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID})
}

// Warn 输出可继续运行的异常（warn 级别）。
func (l *Logger) Warn(comp, code, msg string) {
	l.log(zapcore.WarnLevel, Event{Comp: comp, Stage: "warn", Code: code, Msg: msg})
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Msg: msg, KV: kv})
}

// Sync 刷新并关闭自有 sink。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	err := l.z.Sync()
	if l.sink != nil {
		if cerr := l.sink.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。同时计入耗时指标。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	d := time.Since(t.t0).Milliseconds()
	ObserveDuration(t.comp, msg, d)
	t.l.log(zapcore.InfoLevel, Event{Comp: t.comp, Stage: "finish", DurMS: d, Count: count, FileID: t.fileID, Msg: msg})
}
