package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 全局日志器
var Logger zerolog.Logger

// LogConfig 日志配置
type LogConfig struct {
	Level        string // 日志级别: trace, debug, info, warn, error
	ConsoleLevel string // 控制台最低级别 (空=与Level相同; quiet模式设为warn)
	LogDir       string // 日志目录 (LogFile为空时使用)
	LogFile      string // 显式日志文件路径 (覆盖LogDir下的默认文件名)
	MaxSize      int    // 单个日志文件最大大小(MB)
	MaxBackups   int    // 保留的旧日志文件数量
	MaxAge       int    // 保留天数
	Compress     bool   // 是否压缩旧日志
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger 初始化日志系统
// 输出: 彩色控制台 + 主日志文件(轮转) + 错误日志文件(仅error及以上)
func InitLogger(config LogConfig) error {
	// 确定日志文件路径
	mainPath := config.LogFile
	if mainPath == "" {
		mainPath = filepath.Join(config.LogDir, "reflow.log")
	}
	errorPath := errorLogPath(mainPath)

	if err := os.MkdirAll(filepath.Dir(mainPath), 0755); err != nil {
		return err
	}

	// 解析日志级别
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	consoleLevel := level
	if config.ConsoleLevel != "" {
		if parsed, err := zerolog.ParseLevel(config.ConsoleLevel); err == nil {
			consoleLevel = parsed
		}
	}

	// 主日志文件(带轮转)
	mainLogFile := &lumberjack.Logger{
		Filename:   mainPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	// 错误日志文件(带轮转)
	errorLogFile := &lumberjack.Logger{
		Filename:   errorPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	// 彩色控制台输出
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    false,
	}

	// 多输出配置 (MultiLevelWriter保留WriteLevel,级别过滤才能生效):
	// 1. 控制台 (quiet模式下仅warn及以上)
	// 2. 主日志文件 (所有级别)
	// 3. 错误日志文件 (仅error及以上)
	multiWriter := zerolog.MultiLevelWriter(
		&FilteredWriter{Writer: consoleWriter, MinLevel: consoleLevel},
		mainLogFile,
		&FilteredWriter{Writer: errorLogFile, MinLevel: zerolog.ErrorLevel},
	)

	// 初始化全局logger
	Logger = zerolog.New(multiWriter).
		With().
		Timestamp().
		Logger()

	// 设置全局logger
	log.Logger = Logger

	Logger.Debug().
		Str("level", config.Level).
		Str("log_file", mainPath).
		Msg("日志系统初始化完成")

	return nil
}

// errorLogPath 从主日志路径推导错误日志路径
// 如 logs/reflow.log → logs/reflow_error.log
func errorLogPath(mainPath string) string {
	ext := filepath.Ext(mainPath)
	return strings.TrimSuffix(mainPath, ext) + "_error" + ext
}

// FilteredWriter 过滤写入器,仅写入指定级别及以上的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 实现io.Writer接口
// 无级别信息的写入(如外部库直接写入)原样通过
func (w *FilteredWriter) Write(p []byte) (n int, err error) {
	return w.Writer.Write(p)
}

// WriteLevel 带级别的写入
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level >= w.MinLevel {
		return w.Writer.Write(p)
	}
	return len(p), nil
}

// Info 快捷方法: 信息日志
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Infof 快捷方法: 格式化信息日志
func Infof(format string, args ...interface{}) {
	Logger.Info().Msgf(format, args...)
}

// Error 快捷方法: 错误日志
func Error(err error, msg string) {
	Logger.Error().Err(err).Msg(msg)
}

// Errorf 快捷方法: 格式化错误日志
func Errorf(format string, args ...interface{}) {
	Logger.Error().Msgf(format, args...)
}

// Warn 快捷方法: 警告日志
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Warnf 快捷方法: 格式化警告日志
func Warnf(format string, args ...interface{}) {
	Logger.Warn().Msgf(format, args...)
}

// Debug 快捷方法: 调试日志
func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

// Debugf 快捷方法: 格式化调试日志
func Debugf(format string, args ...interface{}) {
	Logger.Debug().Msgf(format, args...)
}

// Fatal 快捷方法: 致命错误日志(会导致程序退出)
func Fatal(err error, msg string) {
	Logger.Fatal().Err(err).Msg(msg)
}
