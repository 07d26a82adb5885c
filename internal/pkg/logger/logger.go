package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	mu   sync.RWMutex
	once sync.Once
)

// InitLogger 初始化全局 zap logger
// outputPath / errorPath 可以是文件路径，也可以是 "stdout" / "stderr"
// level: debug, info, warn, error, dpanic, panic, fatal
func InitLogger(outputPath, errorPath string, level string) {
	once.Do(func() {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			l = zap.InfoLevel
			fmt.Fprintf(os.Stderr, "Failed to parse log level '%s', defaulting to info: %v\n", level, err)
		}

		for _, p := range []string{outputPath, errorPath} {
			if p == "stdout" || p == "stderr" || p == "" {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to create log directory for %s: %v\n", p, err)
			}
		}

		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(l)
		cfg.OutputPaths = uniquePaths(outputPath, "stdout")
		cfg.ErrorOutputPaths = uniquePaths(errorPath, "stderr")
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

		built, err := cfg.Build()
		if err != nil {
			panic(fmt.Sprintf("Failed to build zap logger: %v", err))
		}
		SetLogger(built)
	})
}

func uniquePaths(path, std string) []string {
	if path == "" || path == std {
		return []string{std}
	}
	return []string{path, std}
}

// SetLogger 替换全局 logger，测试里用 zap.NewNop() 或 zaptest
func SetLogger(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
}

// GetLogger 返回全局 logger；未初始化时输出到 stdout
func GetLogger() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l == nil {
		InitLogger("stdout", "stderr", "info")
		mu.RLock()
		l = log
		mu.RUnlock()
	}
	return l
}

func Sugar() *zap.SugaredLogger {
	return GetLogger().Sugar()
}

// Sync 刷新缓冲区，程序退出前调用
func Sync() {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		if err := l.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync zap logger: %v\n", err)
		}
	}
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
