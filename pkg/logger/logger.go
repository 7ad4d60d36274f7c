package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var globalLogger *slog.Logger

// InitLogger ログレベルに応じてslogを初期化
// w が nil の場合は標準エラーに出力する（標準出力はプログラムの出力に使う）
func InitLogger(level string, w io.Writer) error {
	var slogLevel slog.Level

	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}

	if w == nil {
		w = os.Stderr
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slogLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	return nil
}

// GetLogger グローバルロガーを取得
func GetLogger() *slog.Logger {
	if globalLogger == nil {
		// デフォルトロガーを返す
		return slog.Default()
	}
	return globalLogger
}
