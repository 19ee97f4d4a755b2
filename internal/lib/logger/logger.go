package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"medride/internal/config"
	"medride/internal/lib/logger/slogpretty"
)

// 環境ごとのロガーを作る。secretsに含まれる値はログから消す。
func New(env string, level string, secrets []string) *slog.Logger {
	return newWithWriter(os.Stdout, env, level, secrets)
}

func newWithWriter(out io.Writer, env string, level string, secrets []string) *slog.Logger {
	var h slog.Handler

	switch env {
	case config.EnvLocal:
		opts := slogpretty.PrettyHandlerOptions{
			SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug},
		}
		h = opts.NewPrettyHandler(out)
	case config.EnvDev:
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(level)})
	}

	return slog.New(NewRedactingHandler(h, secrets))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// テストやワーカー用の何も出さないロガー
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
