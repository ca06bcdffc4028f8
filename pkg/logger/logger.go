package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with the field conventions the orchestration
// subsystem's services share: execution_id, batch_id, and platform show up
// across the Orchestrator, Registration Engine, and Scheduler logs, so
// callers get a consistent key regardless of which service is logging.
type Logger struct {
	*logrus.Logger
}

// LoggingConfig is the orchestratord [logging] block: level/format/output
// plus the file prefix used when output is "file".
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePrefix string `mapstructure:"file_prefix"`
}

// New builds a Logger from the process's LoggingConfig.
func New(cfg LoggingConfig) *Logger {
	logger := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Set log format
	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Set log output
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.FilePrefix == "" {
			cfg.FilePrefix = "orchestratord"
		}
		logDir := "logs"
		err := os.MkdirAll(logDir, 0755)
		if err != nil {
			logger.Errorf("Failed to create logs directory: %v", err)
		} else {
			logPath := filepath.Join(logDir, cfg.FilePrefix+".log")
			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				logger.Errorf("Failed to open log file: %v", err)
			} else {
				logger.SetOutput(io.MultiWriter(os.Stdout, file))
			}
		}
	default:
		// Use stdout by default
		logger.SetOutput(os.Stdout)
	}

	return &Logger{
		Logger: logger,
	}
}

// NewDefault builds a stdout, text-formatted Logger for a component that
// hasn't loaded config yet (constructors default to this when passed nil),
// tagging every entry with the component's name.
func NewDefault(name string) *Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	if name != "" {
		logger.AddHook(componentHook{name: name})
	}
	return &Logger{Logger: logger}
}

// componentHook stamps every entry with the component name a Logger was
// constructed for, so logs from NewDefault("scheduler") are distinguishable
// from NewDefault("orchestrator-recoverer") once multiplexed onto one stream.
type componentHook struct{ name string }

func (componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(entry *logrus.Entry) error {
	entry.Data["component"] = h.name
	return nil
}

// WithField returns a new log entry with a field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a new log entry with multiple fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithExecution tags a log entry with the execution_id the Orchestrator and
// Recoverer key their work by.
func (l *Logger) WithExecution(executionID string) *logrus.Entry {
	return l.Logger.WithField("execution_id", executionID)
}

// WithBatch tags a log entry with the batch_id the Registration Engine and
// Scheduler key their work by.
func (l *Logger) WithBatch(batchID string) *logrus.Entry {
	return l.Logger.WithField("batch_id", batchID)
}

// WithPlatform tags a log entry with the target selling platform a
// Registration dispatch is bound for.
func (l *Logger) WithPlatform(platformName string) *logrus.Entry {
	return l.Logger.WithField("platform", platformName)
}
