package log

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	coreerrors "relaybus-core/internal/core/errors"
)

// Config 日志配置
type Config struct {
	Level  string // debug/info/warn/error
	Format string // text/json，留空时终端输出 text，否则 json
	Output string // stdout/stderr/file
	File   string // Output 为 file 时的路径
}

// New 按配置创建 logrus Logger，返回的 io.Closer 用于关闭日志文件
func New(cfg Config) (Logger, io.Closer, error) {
	l := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "invalid log level %q", cfg.Level)
		}
		level = parsed
	}
	l.SetLevel(level)

	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
		tty              = isatty.IsTerminal(os.Stdout.Fd())
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
		tty = isatty.IsTerminal(os.Stderr.Fd())
	case "file":
		if cfg.File == "" {
			return nil, nil, coreerrors.New(coreerrors.CodeConfigError, "log output is file but no file path given")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "create log dir for %q", cfg.File)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "open log file %q", cfg.File)
		}
		out, closer, tty = f, f, false
	default:
		return nil, nil, coreerrors.Newf(coreerrors.CodeConfigError, "invalid log output %q", cfg.Output)
	}
	l.SetOutput(out)

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
		if tty {
			format = "text"
		}
	}
	switch format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
			ForceColors:     tty,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		closer.Close()
		return nil, nil, coreerrors.Newf(coreerrors.CodeConfigError, "invalid log format %q", cfg.Format)
	}

	return NewLogrusLogger(l), closer, nil
}

// Configure 按配置创建 Logger 并设置为默认 Logger
func Configure(cfg Config) (io.Closer, error) {
	l, closer, err := New(cfg)
	if err != nil {
		return nil, err
	}
	SetDefault(l)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
