package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log 全局日志器，未初始化时使用默认配置，便于测试直接调用
var Log = logrus.New()

// InitLogger 初始化日志器
func InitLogger(level, format string) {
	Log = logrus.New()

	// 设置输出格式
	if format == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// 设置输出到标准输出
	Log.SetOutput(os.Stdout)

	// 设置日志级别
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	Log.SetLevel(parsed)
}

// SetOutput 替换输出目标
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

// WithComponent 返回带组件字段的日志条目
func WithComponent(component string) *logrus.Entry {
	return Log.WithField("component", component)
}

// WithFields 结构化日志
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// Debug 调试日志
func Debug(args ...interface{}) {
	Log.Debug(args...)
}

// Debugf 格式化调试日志
func Debugf(format string, args ...interface{}) {
	Log.Debugf(format, args...)
}

// Info 信息日志
func Info(args ...interface{}) {
	Log.Info(args...)
}

// Infof 格式化信息日志
func Infof(format string, args ...interface{}) {
	Log.Infof(format, args...)
}

// Warn 警告日志
func Warn(args ...interface{}) {
	Log.Warn(args...)
}

// Warnf 格式化警告日志
func Warnf(format string, args ...interface{}) {
	Log.Warnf(format, args...)
}

// Error 错误日志
func Error(args ...interface{}) {
	Log.Error(args...)
}

// Errorf 格式化错误日志
func Errorf(format string, args ...interface{}) {
	Log.Errorf(format, args...)
}

// Fatalf 格式化致命错误日志
func Fatalf(format string, args ...interface{}) {
	Log.Fatalf(format, args...)
}
