package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitGlobalLogger initializes the zap global logger, writing to a rotated
// file next to the process.
func InitGlobalLogger() {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, getLogWriter(), zapcore.DebugLevel))
	zap.ReplaceGlobals(logger)
}

func getLogWriter() zapcore.WriteSyncer {
	lumberJackLogger := &lumberjack.Logger{
		Filename: "./tichecker.log",
	}
	return zapcore.AddSync(lumberJackLogger)
}
