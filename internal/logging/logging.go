package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	fiberLogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, encoding and an optional rotating log directory
type Options struct {
	Level  string
	Format string // text or json
	Dir    string // empty logs to stdout only
	Stdout io.Writer
}

// Setup is the process-wide logging output
type Setup struct {
	Logger *logrus.Logger
	Buffer *LogBuffer
	Output io.Writer

	file *lumberjack.Logger
}

// New builds a logger writing to stdout, the tail buffer and, when Dir is
// set, a rotating app.log
func New(opts Options) (*Setup, error) {
	level, err := logrus.ParseLevel(orDefault(opts.Level, "info"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	s := &Setup{Buffer: NewLogBuffer(1000)}
	writers := []io.Writer{stdout, s.Buffer}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
			return nil, errors.Wrapf(err, "create log directory %s", opts.Dir)
		}
		s.file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "app.log"),
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		writers = append(writers, s.file)
	}
	s.Output = io.MultiWriter(writers...)

	logger := logrus.New()
	logger.SetOutput(s.Output)
	logger.SetLevel(level)
	switch orDefault(opts.Format, "text") {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("unknown log format %q", opts.Format)
	}
	s.Logger = logger

	return s, nil
}

// HTTPConfig routes fiber's access log to the same outputs
func (s *Setup) HTTPConfig() fiberLogger.Config {
	return fiberLogger.Config{
		Output:     s.Output,
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}
}

// Close flushes the rotating file, if any
func (s *Setup) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// LogBuffer captures the most recent log writes in memory
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	limit int
}

// NewLogBuffer keeps at most limit entries
func NewLogBuffer(limit int) *LogBuffer {
	if limit <= 0 {
		limit = 1000
	}
	return &LogBuffer{lines: make([]string, 0, limit), limit: limit}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))
	if len(lb.lines) > lb.limit {
		lb.lines = lb.lines[len(lb.lines)-lb.limit:]
	}

	return len(p), nil
}

// GetLogs returns a copy of the buffered entries, oldest first
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
